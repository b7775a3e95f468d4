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

package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
)

// passageWriteBatch bounds the passages written per transaction so large
// documents stay under badger's transaction size limit.
const passageWriteBatch = 256

// PassageRepository implements storage.PassageRepository for BadgerDB.
type PassageRepository struct {
	backend *Backend
}

var _ storage.PassageRepository = (*PassageRepository)(nil)

// NewPassageRepository creates a new PassageRepository.
func NewPassageRepository(backend *Backend) (*PassageRepository, error) {
	return &PassageRepository{
		backend: backend,
	}, nil
}

// Close is a no-op; the backend owns the database handle.
func (r *PassageRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *PassageRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Nearest delegates to the backend.
func (r *PassageRepository) Nearest(ctx context.Context, vector []float32, n int) ([]core.Neighbor, error) {
	return r.backend.Nearest(ctx, vector, n)
}

// AddPassages stores passages, replacing any with the same ID.
func (r *PassageRepository) AddPassages(ctx context.Context, passages ...*core.Passage) ([]*core.Passage, error) {
	for _, passage := range passages {
		if err := core.ValidatePassage(passage); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	for batch := range slices.Chunk(passages, passageWriteBatch) {
		if err := r.addBatch(batch, now); err != nil {
			return nil, err
		}
	}
	return passages, nil
}

func (r *PassageRepository) addBatch(passages []*core.Passage, now time.Time) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, passage := range passages {
			if passage.Id == 0 {
				passage.Id = core.PassageID(passage.Source, passage.Text)
			}

			key := makePassageKey(passage.Id)
			old, err := readPassage(tx, key)
			if err != nil {
				return err
			}
			switch {
			case old != nil && !old.InsertedAt.IsZero():
				passage.InsertedAt = old.InsertedAt
			case passage.InsertedAt.IsZero():
				passage.InsertedAt = now
			}
			passage.UpdatedAt = now

			// A replaced passage may have moved to another source
			if old != nil && old.Source != passage.Source {
				if err := tx.Delete(makePassageSourceKey(old.Source, old.Id)); err != nil {
					return err
				}
			}

			if err := tx.Set(key, storage.MarshalPassage(passage)); err != nil {
				return err
			}
			if err := tx.Set(makePassageSourceKey(passage.Source, passage.Id), storage.MarshalID(passage.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// UpdatePassages updates existing passages.
// Passages are written in bounded transactions; on ErrNotFound the batches
// before the missing passage are already committed.
func (r *PassageRepository) UpdatePassages(ctx context.Context, passages ...*core.Passage) ([]*core.Passage, error) {
	now := time.Now().UTC()
	for batch := range slices.Chunk(passages, passageWriteBatch) {
		if err := r.updateBatch(batch, now); err != nil {
			return passages, err
		}
	}
	return passages, nil
}

func (r *PassageRepository) updateBatch(passages []*core.Passage, now time.Time) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, passage := range passages {
			key := makePassageKey(passage.Id)
			old, err := readPassage(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			passage.UpdatedAt = now
			if err := tx.Set(key, storage.MarshalPassage(passage)); err != nil {
				return err
			}

			if old.Source != passage.Source {
				if err := tx.Delete(makePassageSourceKey(old.Source, old.Id)); err != nil {
					return err
				}
				if err := tx.Set(makePassageSourceKey(passage.Source, passage.Id), storage.MarshalID(passage.Id)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)
}

// DeletePassages removes passages by their IDs.
// IDs are deleted in bounded transactions; on ErrNotFound the batches before
// the missing ID are already committed.
func (r *PassageRepository) DeletePassages(ctx context.Context, ids ...core.ID) error {
	for batch := range slices.Chunk(ids, passageWriteBatch) {
		if err := r.deleteBatch(batch); err != nil {
			return err
		}
	}
	return nil
}

func (r *PassageRepository) deleteBatch(ids []core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makePassageKey(id)
			passage, err := readPassage(tx, key)
			if err != nil {
				return err
			}
			if passage == nil {
				return storage.ErrNotFound
			}
			if err := tx.Delete(makePassageSourceKey(passage.Source, id)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteSource removes every passage chunked from source.
func (r *PassageRepository) DeleteSource(ctx context.Context, source string) (int, error) {
	ids, err := r.PassageIDsBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.DeletePassages(ctx, ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// PassageIDsBySource returns the IDs of passages chunked from source.
func (r *PassageRepository) PassageIDsBySource(ctx context.Context, source string) ([]core.ID, error) {
	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePassageSourcePrefix(source)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var id core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				id, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}, false)
	return ids, err
}

// Sources returns the distinct passage sources in lexical order.
func (r *PassageRepository) Sources(ctx context.Context) ([]string, error) {
	var sources []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(passageSourcePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			// Key layout: prefix + source + 0x00 + 8-byte id
			key := iter.Item().Key()[len(passageSourcePrefix):]
			if len(key) < 9 {
				continue
			}
			source := string(key[:len(key)-9])
			if len(sources) == 0 || sources[len(sources)-1] != source {
				sources = append(sources, source)
			}
		}
		return nil
	}, false)
	return sources, err
}

// CountPassages returns the total and embedded passage counts.
func (r *PassageRepository) CountPassages(ctx context.Context) (int, int, error) {
	var total, embedded int
	err := r.scan(ctx, func(passage *core.Passage) error {
		total++
		if passage.Embedded() {
			embedded++
		}
		return nil
	})
	return total, embedded, err
}

// GetPassage retrieves a single passage by ID.
func (r *PassageRepository) GetPassage(ctx context.Context, id core.ID) (*core.Passage, error) {
	var result *core.Passage
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readPassage(tx, makePassageKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetPassages retrieves multiple passages by their IDs.
func (r *PassageRepository) GetPassages(ctx context.Context, ids ...core.ID) ([]*core.Passage, error) {
	result := make([]*core.Passage, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			passage, err := readPassage(tx, makePassageKey(id))
			if err != nil {
				return err
			}
			if passage != nil {
				result = append(result, passage)
			}
		}
		return nil
	}, false)
	return result, err
}

// AllPassages returns every passage in ID order.
func (r *PassageRepository) AllPassages(ctx context.Context) ([]*core.Passage, error) {
	var result []*core.Passage
	err := r.scan(ctx, func(passage *core.Passage) error {
		result = append(result, passage)
		return nil
	})
	return result, err
}

// PassagesAfter returns up to limit passages with IDs greater than after, in ID order.
// Used for resumable batch iteration.
func (r *PassageRepository) PassagesAfter(ctx context.Context, after core.ID, limit int) ([]*core.Passage, error) {
	var result []*core.Passage
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(passagePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makePassageKey(after)); iter.Valid() && len(result) < limit; iter.Next() {
			if passageIDFromKey(iter.Item().Key()) == after {
				continue
			}
			passage, err := unmarshalItem(iter.Item())
			if err != nil {
				return err
			}
			result = append(result, passage)
		}
		return nil
	}, false)
	return result, err
}

// DeleteAll removes every passage and the source index.
func (r *PassageRepository) DeleteAll(ctx context.Context) error {
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, prefix := range []string{passagePrefix, passageSourcePrefix} {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte(prefix)
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				keys = append(keys, iter.Item().KeyCopy(nil))
			}
			iter.Close()
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	wb := r.backend.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// scan calls fn for every passage in ID order.
func (r *PassageRepository) scan(ctx context.Context, fn func(*core.Passage) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(passagePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			passage, err := unmarshalItem(iter.Item())
			if err != nil {
				return err
			}
			if err := fn(passage); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// readPassage reads a passage from the transaction. Returns nil, nil when absent.
func readPassage(tx *badger.Txn, key []byte) (*core.Passage, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return unmarshalItem(item)
}

func unmarshalItem(item *badger.Item) (*core.Passage, error) {
	var passage *core.Passage
	err := item.Value(func(val []byte) error {
		var err error
		passage, err = storage.UnmarshalPassage(val)
		return err
	})
	return passage, err
}
