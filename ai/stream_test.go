package ai

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragments(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestOnceStream(t *testing.T) {
	calls := 0
	seq := OnceStream(func(yield func(string, error) bool) {
		calls++
		fragments("Refunds ", "take ", "14 days.")(yield)
	})

	text, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 14 days.", text)

	_, err = Collect(seq)
	assert.ErrorIs(t, err, ErrStreamConsumed)
	assert.Equal(t, 1, calls, "producer runs once")
}

func TestOnceStream_EarlyBreak(t *testing.T) {
	produced := 0
	seq := OnceStream(func(yield func(string, error) bool) {
		for _, p := range []string{"a", "b", "c"} {
			produced++
			if !yield(p, nil) {
				return
			}
		}
	})

	for range seq {
		break
	}
	assert.Equal(t, 1, produced, "breaking stops the producer")
}

func TestCollect_Error(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(string, error) bool) {
		if !yield("partial ", nil) {
			return
		}
		yield("", boom)
	}

	text, err := Collect(seq)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial ", text)
}
