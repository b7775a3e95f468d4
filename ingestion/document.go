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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtensions are the file types loaded from a knowledge-base directory.
var DefaultExtensions = []string{".txt", ".md"}

// Document is a named text to be chunked into passages.
type Document struct {
	Source string
	Text   string
}

// LoadDocuments reads every file under dir whose extension is in extensions,
// recursively. Sources are paths relative to dir with forward slashes.
// Files that cannot be read are skipped; their errors are joined into the
// returned error alongside the documents that did load.
func LoadDocuments(dir string, extensions ...string) ([]Document, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	var docs []Document
	var errs []error
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if d.IsDir() || !hasExtension(path, extensions) {
			return nil
		}
		doc, err := LoadDocument(dir, path)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return docs, err
	}
	return docs, errors.Join(errs...)
}

// LoadDocument reads a single file under root.
func LoadDocument(root, path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	source, err := SourceName(root, path)
	if err != nil {
		return Document{}, err
	}
	return Document{Source: source, Text: string(data)}, nil
}

// SourceName returns the source recorded for the file at path under root.
func SourceName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(extensions, ext)
}
