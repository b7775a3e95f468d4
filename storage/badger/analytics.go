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
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
)


// AnalyticsRepository implements storage.AnalyticsRepository for BadgerDB.
type AnalyticsRepository struct {
	backend *Backend
}

var _ storage.AnalyticsRepository = (*AnalyticsRepository)(nil)

// NewAnalyticsRepository creates a new AnalyticsRepository.
func NewAnalyticsRepository(backend *Backend) *AnalyticsRepository {
	return &AnalyticsRepository{
		backend: backend,
	}
}

// RecordQuery counts an answered query.
func (r *AnalyticsRepository) RecordQuery(ctx context.Context, at time.Time, responseTime time.Duration, sources int) error {
	return r.update(at, func(s *core.DailyStats) {
		s.Queries++
		s.Sources += sources
		s.ResponseMicros += responseTime.Microseconds()
	})
}

// RecordSession counts a newly started session.
func (r *AnalyticsRepository) RecordSession(ctx context.Context, at time.Time) error {
	return r.update(at, func(s *core.DailyStats) {
		s.Sessions++
	})
}

// RecordFeedback counts positive or negative feedback.
func (r *AnalyticsRepository) RecordFeedback(ctx context.Context, at time.Time, positive bool) error {
	return r.update(at, func(s *core.DailyStats) {
		if positive {
			s.PositiveFeedback++
		} else {
			s.NegativeFeedback++
		}
	})
}

// RecordError counts a failed query.
func (r *AnalyticsRepository) RecordError(ctx context.Context, at time.Time) error {
	return r.update(at, func(s *core.DailyStats) {
		s.Errors++
	})
}

// Stats summarizes the given number of days ending at now.
// Days without activity are reported with zero counters.
func (r *AnalyticsRepository) Stats(ctx context.Context, days int, now time.Time) (*core.AnalyticsSummary, error) {
	if days < 1 {
		return nil, fmt.Errorf("%w: days must be positive", storage.ErrInvalidQuery)
	}

	summary := &core.AnalyticsSummary{Days: days}
	today := startOfDay(now)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for i := days - 1; i >= 0; i-- {
			day := today.AddDate(0, 0, -i)
			stats, err := readDailyStats(tx, day)
			if err != nil {
				return err
			}
			summary.Daily = append(summary.Daily, stats)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	var responseMicros int64
	var sources int
	for _, s := range summary.Daily {
		summary.TotalQueries += s.Queries
		summary.TotalSessions += s.Sessions
		summary.TotalErrors += s.Errors
		summary.PositiveFeedback += s.PositiveFeedback
		summary.NegativeFeedback += s.NegativeFeedback
		responseMicros += s.ResponseMicros
		sources += s.Sources
	}
	if summary.TotalQueries > 0 {
		summary.AverageResponseTime = time.Duration(responseMicros/int64(summary.TotalQueries)) * time.Microsecond
		summary.AverageSources = float64(sources) / float64(summary.TotalQueries)
	}
	if feedback := summary.PositiveFeedback + summary.NegativeFeedback; feedback > 0 {
		summary.SatisfactionRate = float64(summary.PositiveFeedback) / float64(feedback)
	}
	return summary, nil
}

// update applies fn to the counters of the day containing at.
// Concurrent updates of the same day are serialized by conflict retries in WithTx.
func (r *AnalyticsRepository) update(at time.Time, fn func(*core.DailyStats)) error {
	day := startOfDay(at)
	return r.backend.WithTx(func(tx *badger.Txn) error {
		stats, err := readDailyStats(tx, day)
		if err != nil {
			return err
		}
		fn(stats)
		if err := tx.Set(makeStatsKey(day), storage.MarshalDailyStats(stats)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readDailyStats reads one day's counters, returning zeroed counters when none exist.
func readDailyStats(tx *badger.Txn, day time.Time) (*core.DailyStats, error) {
	item, err := tx.Get(makeStatsKey(day))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &core.DailyStats{Day: day}, nil
		}
		return nil, err
	}

	var stats *core.DailyStats
	err = item.Value(func(val []byte) error {
		var err error
		stats, err = storage.UnmarshalDailyStats(val)
		return err
	})
	return stats, err
}

func startOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
