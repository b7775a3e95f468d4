package storage

import (
	"testing"
	"time"

	"github.com/poiesic/groundwork/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshal_EmptyData(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalPassage([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalTurn([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalCheckpoint([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalDailyStats([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalPassage(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name    string
		passage *core.Passage
	}{
		{
			name: "passage without vector",
			passage: &core.Passage{
				Id:         core.PassageID("faq.md", "Refunds are processed within 14 days."),
				Source:     "faq.md",
				Text:       "Refunds are processed within 14 days.",
				InsertedAt: now,
				UpdatedAt:  now,
			},
		},
		{
			name: "passage with vector and unicode",
			passage: &core.Passage{
				Id:         core.ID(7),
				Source:     "docs/über.md",
				Text:       "Grüße aus München 🌍",
				Vector:     []float32{0.1, -0.2, 0.3, 0.4},
				InsertedAt: now,
				UpdatedAt:  now.Add(time.Second),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalPassage(MarshalPassage(tt.passage))
			require.NoError(t, err)

			assert.Equal(t, tt.passage.Id, decoded.Id)
			assert.Equal(t, tt.passage.Source, decoded.Source)
			assert.Equal(t, tt.passage.Text, decoded.Text)
			assert.True(t, tt.passage.InsertedAt.Equal(decoded.InsertedAt))
			assert.True(t, tt.passage.UpdatedAt.Equal(decoded.UpdatedAt))
			if len(tt.passage.Vector) == 0 {
				assert.Empty(t, decoded.Vector)
			} else {
				assert.Equal(t, tt.passage.Vector, decoded.Vector)
			}
		})
	}
}

func TestMarshalUnmarshalTurn(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	turn := &core.ConversationTurn{
		Id:        core.ID(12),
		SessionID: "3f1c2e9a-session",
		Question:  "What is the refund policy?",
		Answer:    "Refunds are processed within 14 days.",
		Sources:   []string{"faq.md", "policy.md"},
		Timestamp: now,
	}

	decoded, err := UnmarshalTurn(MarshalTurn(turn))
	require.NoError(t, err)
	assert.Equal(t, turn.Id, decoded.Id)
	assert.Equal(t, turn.SessionID, decoded.SessionID)
	assert.Equal(t, turn.Question, decoded.Question)
	assert.Equal(t, turn.Answer, decoded.Answer)
	assert.Equal(t, turn.Sources, decoded.Sources)
	assert.True(t, turn.Timestamp.Equal(decoded.Timestamp))
}

func TestMarshalUnmarshalDailyStats(t *testing.T) {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	stats := &core.DailyStats{
		Day:              day,
		Queries:          12,
		Sessions:         3,
		Errors:           1,
		PositiveFeedback: 4,
		NegativeFeedback: 2,
		Sources:          30,
		ResponseMicros:   1_250_000,
	}

	decoded, err := UnmarshalDailyStats(MarshalDailyStats(stats))
	require.NoError(t, err)
	assert.True(t, day.Equal(decoded.Day))
	decoded.Day = stats.Day
	assert.Equal(t, stats, decoded)
}

func TestMarshalUnmarshalCheckpoint(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	checkpoint := &core.Checkpoint{ProcessorType: "reembed", LastID: core.ID(99), UpdatedAt: now}

	decoded, err := UnmarshalCheckpoint(MarshalCheckpoint(checkpoint))
	require.NoError(t, err)
	assert.Equal(t, checkpoint.ProcessorType, decoded.ProcessorType)
	assert.Equal(t, checkpoint.LastID, decoded.LastID)
	assert.True(t, checkpoint.UpdatedAt.Equal(decoded.UpdatedAt))
}
