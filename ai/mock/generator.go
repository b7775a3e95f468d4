package mock

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/poiesic/groundwork/ai"
)

// DefaultAnswer is returned when no custom behavior is configured.
const DefaultAnswer = "This is a mock answer."

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate and, split into words, by Stream if set.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	// Chunks, when set, are streamed verbatim by Stream.
	Chunks []string

	mu        sync.Mutex
	prompts   []string
	callCount atomic.Int64
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) record(prompt string) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
}

func (m *MockGenerator) answer(ctx context.Context, prompt string) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return DefaultAnswer, nil
}

// Generate returns the configured answer.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.record(prompt)
	if len(m.Chunks) > 0 && m.GenerateFunc == nil {
		return strings.Join(m.Chunks, ""), nil
	}
	return m.answer(ctx, prompt)
}

// Stream yields Chunks, or the configured answer split after every space.
// The prompt is recorded when the stream is first ranged over.
func (m *MockGenerator) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return ai.OnceStream(func(yield func(string, error) bool) {
		m.record(prompt)

		chunks := m.Chunks
		if len(chunks) == 0 {
			text, err := m.answer(ctx, prompt)
			if err != nil {
				yield("", err)
				return
			}
			chunks = strings.SplitAfter(text, " ")
		}

		for _, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	})
}

// CallCount returns the number of generations started.
func (m *MockGenerator) CallCount() int {
	return int(m.callCount.Load())
}

// Prompts returns a copy of every prompt seen so far.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// LastPrompt returns the most recent prompt, or "".
func (m *MockGenerator) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// Reset clears recorded prompts and custom behavior.
func (m *MockGenerator) Reset() {
	m.callCount.Store(0)
	m.mu.Lock()
	m.prompts = nil
	m.mu.Unlock()
	m.GenerateFunc = nil
	m.Chunks = nil
}
