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


package reembed

import (
	"context"
	"iter"

	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
)

// DefaultBatchSize is the default number of passages fetched per batch.
const DefaultBatchSize = 100

// PassageLister pages through passages in ID order.
type PassageLister interface {
	PassagesAfter(ctx context.Context, after core.ID, limit int) ([]*core.Passage, error)
}

var _ PassageLister = (storage.PassageRepository)(nil)

// batches yields passages with IDs greater than after, batchSize at a time,
// in ID order. Each page is fetched only when the previous one has been
// handled, so passages added behind the cursor are not revisited.
func batches(ctx context.Context, lister PassageLister, after core.ID, batchSize int) iter.Seq2[[]*core.Passage, error] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return func(yield func([]*core.Passage, error) bool) {
		cursor := after
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := lister.PassagesAfter(ctx, cursor, batchSize)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if len(page) < batchSize {
				return
			}
			cursor = page[len(page)-1].Id
		}
	}
}
