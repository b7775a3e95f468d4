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
	"fmt"
	"io"
	"sync"
	"time"
)

// progressTracker writes a single updating progress line.
type progressTracker struct {
	mu             sync.Mutex
	writer         io.Writer
	total          int
	done           int
	reportInterval int
	lastReported   int
	startTime      time.Time
}

func newProgressTracker(writer io.Writer, total, done, reportInterval int) *progressTracker {
	if writer == nil {
		writer = io.Discard
	}
	return &progressTracker{
		writer:         writer,
		total:          total,
		done:           done,
		reportInterval: max(reportInterval, 1),
		lastReported:   done,
		startTime:      time.Now(),
	}
}

// add records n more processed passages and reports when an interval is crossed.
func (p *progressTracker) add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = min(p.done+n, p.total)
	if p.done-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.done
	}
}

// finish reports the final count and ends the line.
func (p *progressTracker) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = p.total
	p.report()
	fmt.Fprintln(p.writer)
}

func (p *progressTracker) elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.startTime)
}

// report must be called with the lock held.
func (p *progressTracker) report() {
	percentage := 100.0
	if p.total > 0 {
		percentage = float64(p.done) / float64(p.total) * 100
	}
	rate := 0.0
	if seconds := time.Since(p.startTime).Seconds(); seconds > 0 {
		rate = float64(p.done) / seconds
	}
	fmt.Fprintf(p.writer, "\rRe-embedded %d/%d passages (%.1f%%) - %.1f passages/s",
		p.done, p.total, percentage, rate)
}
