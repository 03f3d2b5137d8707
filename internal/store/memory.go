package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
)

// MemoryStore is a concurrency-safe in-memory implementation of the reading
// store. It backs tests and the degraded DB-less mode, where the process
// keeps serving demo data instead of failing.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []solar.CombinedReading

	// maxHistory bounds the number of retained rows (0 = unlimited).
	maxHistory int
}

// NewMemoryStore creates a MemoryStore with an optional row limit.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{maxHistory: maxHistory}
}

// InsertReading appends one reading and enforces retention.
func (s *MemoryStore) InsertReading(_ context.Context, r solar.CombinedReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, r)
	if s.maxHistory > 0 && len(s.rows) > s.maxHistory {
		over := len(s.rows) - s.maxHistory
		s.rows = s.rows[over:]
	}
	return nil
}

// SourceSeries returns the most recent limit rows with a non-null GHI for
// the source, ordered by timestamp ascending.
func (s *MemoryStore) SourceSeries(_ context.Context, source solar.SourceName, limit int) ([]solar.CombinedReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []solar.CombinedReading
	for _, row := range s.rows {
		if reading, ok := row.Readings[source]; ok && reading.Metric(solar.MetricGHI) != nil {
			matched = append(matched, row)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ScrapedAt.Before(matched[j].ScrapedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// LatestNear returns the most recent row within 0.1 degrees of the point.
func (s *MemoryStore) LatestNear(_ context.Context, lat, lng float64) (solar.CombinedReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  solar.CombinedReading
		found bool
	)
	for _, row := range s.rows {
		if math.Abs(row.Location.Lat-lat) >= 0.1 || math.Abs(row.Location.Lng-lng) >= 0.1 {
			continue
		}
		if !found || row.ScrapedAt.After(best.ScrapedAt) {
			best = row
			found = true
		}
	}
	if !found {
		return solar.CombinedReading{}, ErrNotFound
	}
	return best, nil
}

// Stats computes summary aggregates over the retained rows.
func (s *MemoryStore) Stats(_ context.Context) (solar.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := solar.StoreStats{TotalRecords: len(s.rows)}

	seen := make(map[string]struct{})
	cutoff := time.Now().Add(-24 * time.Hour)
	var latest time.Time

	for _, row := range s.rows {
		seen[row.Location.Key()] = struct{}{}
		if row.IsLive {
			stats.OnlineScrapes++
		} else {
			stats.OfflineScrapes++
		}
		if row.ScrapedAt.After(cutoff) {
			stats.Recent24h++
		}
		if row.ScrapedAt.After(latest) {
			latest = row.ScrapedAt
		}
	}

	stats.UniqueLocations = len(seen)
	if !latest.IsZero() {
		stats.LatestRecord = &latest
	}
	return stats, nil
}
