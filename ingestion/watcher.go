// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the passages of a knowledge-base directory in sync with
// its files. Created or modified files are re-ingested and removed or
// renamed files have their passages deleted.
type Watcher struct {
	pipeline *Pipeline
	dir      string
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher) error

// WithWatcherLogger sets a custom logger.
// Default is slog.Default().
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// NewWatcher watches dir and every directory below it.
func NewWatcher(pipeline *Pipeline, dir string, opts ...WatcherOption) (*Watcher, error) {
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		pipeline: pipeline,
		dir:      dir,
		watcher:  fsw,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "watcher", "dir", dir)

	if err := w.addTree(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching knowledge base")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			// Gone before we got to it; a Remove event follows.
			return
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) {
				if err := w.addTree(event.Name); err != nil {
					w.logger.Warn("failed to watch directory", "path", event.Name, "err", err)
				}
				w.ingestTree(ctx, event.Name)
			}
			return
		}
		w.ingestFile(ctx, event.Name)
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.removeFile(ctx, event.Name)
	}
}

func (w *Watcher) ingestTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.ingestFile(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	if !hasExtension(path, w.pipeline.extensions) {
		return
	}
	doc, err := LoadDocument(w.dir, path)
	if err != nil {
		w.logger.Warn("failed to load document", "path", path, "err", err)
		return
	}
	if _, err := w.pipeline.Ingest(ctx, doc); err != nil {
		w.logger.Error("failed to ingest document", "source", doc.Source, "err", err)
	}
}

func (w *Watcher) removeFile(ctx context.Context, path string) {
	source, err := SourceName(w.dir, path)
	if err != nil {
		return
	}
	if hasExtension(path, w.pipeline.extensions) {
		if _, err := w.pipeline.RemoveSource(ctx, source); err != nil {
			w.logger.Error("failed to remove source", "source", source, "err", err)
		}
		return
	}
	// A removed directory takes its documents with it.
	if err := w.removePrefix(ctx, source+"/"); err != nil {
		w.logger.Error("failed to remove directory sources", "dir", source, "err", err)
	}
}

func (w *Watcher) removePrefix(ctx context.Context, prefix string) error {
	sources, err := w.pipeline.passages.Sources(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, source := range sources {
		if strings.HasPrefix(source, prefix) {
			if _, err := w.pipeline.RemoveSource(ctx, source); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
