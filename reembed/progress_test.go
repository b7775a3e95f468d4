package reembed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := newProgressTracker(&buf, 100, 0, 25)

	tracker.add(10)
	assert.Empty(t, buf.String(), "below the report interval")

	tracker.add(20)
	assert.Contains(t, buf.String(), "30/100 passages (30.0%)")

	tracker.add(500)
	assert.Contains(t, buf.String(), "100/100", "progress is capped at the total")

	tracker.finish()
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestProgressTracker_NilWriter(t *testing.T) {
	tracker := newProgressTracker(nil, 10, 0, 0)
	assert.NotPanics(t, func() {
		tracker.add(5)
		tracker.finish()
	})
}
