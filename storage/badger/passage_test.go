package badger

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassageBasics(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	added, err := repos.Passages.AddPassages(ctx, &core.Passage{
		Source: "faq.md",
		Text:   "Refunds are processed within 14 days of purchase.",
	})
	require.NoError(t, err)
	require.Len(t, added, 1)

	want := core.PassageID("faq.md", "Refunds are processed within 14 days of purchase.")
	assert.Equal(t, want, added[0].Id)
	assert.False(t, added[0].InsertedAt.IsZero())

	got, err := repos.Passages.GetPassage(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, "Refunds are processed within 14 days of purchase.", got.Text)
	assert.Equal(t, "faq.md", got.Source)

	_, err = repos.Passages.GetPassage(ctx, core.ID(12345))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddPassages_Validation(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	_, err = repos.Passages.AddPassages(context.Background(), &core.Passage{Source: "faq.md"})
	assert.ErrorIs(t, err, core.ErrInvalidPassage)
}

func TestAddPassages_IdempotentReingest(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	first, err := repos.Passages.AddPassages(ctx, &core.Passage{Source: "faq.md", Text: "Shipping is free."})
	require.NoError(t, err)
	insertedAt := first[0].InsertedAt

	time.Sleep(2 * time.Millisecond)
	_, err = repos.Passages.AddPassages(ctx, &core.Passage{Source: "faq.md", Text: "Shipping is free."})
	require.NoError(t, err)

	total, _, err := repos.Passages.CountPassages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	got, err := repos.Passages.GetPassage(ctx, first[0].Id)
	require.NoError(t, err)
	assert.True(t, insertedAt.Equal(got.InsertedAt), "re-ingesting keeps the original insertion time")
}

func TestUpdatePassages(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	added := addPassages(t, repos.Passages, &core.Passage{Source: "faq.md", Text: "Support hours are 9 to 5."})

	passage := added[0]
	passage.Vector = []float32{0.5, 0.5}
	_, err = repos.Passages.UpdatePassages(ctx, passage)
	require.NoError(t, err)

	total, embedded, err := repos.Passages.CountPassages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, embedded)

	_, err = repos.Passages.UpdatePassages(ctx, &core.Passage{Id: 999, Source: "x", Text: "y"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteSource(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	addPassages(t, repos.Passages,
		&core.Passage{Source: "faq.md", Text: "one"},
		&core.Passage{Source: "faq.md", Text: "two"},
		&core.Passage{Source: "faq.md.bak", Text: "three"},
		&core.Passage{Source: "policy.md", Text: "four"},
	)

	sources, err := repos.Passages.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"faq.md", "faq.md.bak", "policy.md"}, sources)

	removed, err := repos.Passages.DeleteSource(ctx, "faq.md")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	sources, err = repos.Passages.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"faq.md.bak", "policy.md"}, sources)

	removed, err = repos.Passages.DeleteSource(ctx, "missing.md")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeletePassages(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	added := addPassages(t, repos.Passages, &core.Passage{Source: "faq.md", Text: "one"})

	require.NoError(t, repos.Passages.DeletePassages(ctx, added[0].Id))
	_, err = repos.Passages.GetPassage(ctx, added[0].Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = repos.Passages.DeletePassages(ctx, added[0].Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetPassages_SkipsMissing(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	added := addPassages(t, repos.Passages,
		&core.Passage{Source: "a.md", Text: "one"},
		&core.Passage{Source: "a.md", Text: "two"},
	)

	got, err := repos.Passages.GetPassages(context.Background(), added[1].Id, core.ID(4242), added[0].Id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, added[1].Id, got[0].Id, "order follows the requested IDs")
	assert.Equal(t, added[0].Id, got[1].Id)
}

func TestPassagesAfter(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		addPassages(t, repos.Passages, &core.Passage{Source: "doc.md", Text: text})
	}

	all, err := repos.Passages.AllPassages(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Id, all[i].Id, "AllPassages is in ID order")
	}

	page, err := repos.Passages.PassagesAfter(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[0].Id, page[0].Id)

	page, err = repos.Passages.PassagesAfter(ctx, page[1].Id, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, all[2].Id, page[0].Id)
}

func TestDeleteAll(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	addPassages(t, repos.Passages,
		&core.Passage{Source: "a.md", Text: "one"},
		&core.Passage{Source: "b.md", Text: "two"},
	)

	require.NoError(t, repos.Passages.DeleteAll(ctx))

	total, _, err := repos.Passages.CountPassages(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	sources, err := repos.Passages.Sources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestPassages_LargeBatch(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	const n = 12000
	filler := strings.Repeat("x", 1000)
	passages := make([]*core.Passage, 0, n)
	for i := range n {
		passages = append(passages, &core.Passage{
			Source: "big.md",
			Text:   fmt.Sprintf("chunk %d %s", i, filler),
		})
	}

	_, err = repos.Passages.AddPassages(ctx, passages...)
	require.NoError(t, err, "a large document is written in bounded transactions")
	total, embedded, err := repos.Passages.CountPassages(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, total)
	assert.Zero(t, embedded)

	for _, p := range passages {
		p.Vector = []float32{1, 0, 0, 0}
	}
	_, err = repos.Passages.UpdatePassages(ctx, passages...)
	require.NoError(t, err)
	_, embedded, err = repos.Passages.CountPassages(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, embedded)

	ids, err := repos.Passages.PassageIDsBySource(ctx, "big.md")
	require.NoError(t, err)
	require.Len(t, ids, n)
	require.NoError(t, repos.Passages.DeletePassages(ctx, ids...))
	total, _, err = repos.Passages.CountPassages(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}
