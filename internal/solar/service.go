package solar

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gritasolar/solar-data-aggregation/pkg/metrics"
)

// cacheEntry memoizes one combined reading. Entries are superseded by new
// ones on refresh, never mutated in place.
type cacheEntry struct {
	reading   CombinedReading
	fetchedAt time.Time
}

// Service runs the acquisition pipeline: cache lookup, coordinated fetch,
// aggregation and persistence. It owns the only explicit concurrency-control
// primitive in the system, the in-flight de-duplication per coordinate key.
type Service struct {
	coordinator *Coordinator
	store       Store
	backup      BackupWriter
	metrics     *metrics.Collector
	freshness   time.Duration

	// now is swapped out in tests to control the freshness window.
	now func() time.Time

	mu          sync.RWMutex
	cache       map[string]cacheEntry
	active      map[string]struct{}
	lastSuccess time.Time

	group singleflight.Group
}

// NewService creates the acquisition service. freshness bounds how long a
// cached reading is served without re-acquisition.
func NewService(coordinator *Coordinator, store Store, freshness time.Duration, collector *metrics.Collector) *Service {
	if freshness <= 0 {
		freshness = time.Hour
	}
	return &Service{
		coordinator: coordinator,
		store:       store,
		metrics:     collector,
		freshness:   freshness,
		now:         time.Now,
		cache:       make(map[string]cacheEntry),
		active:      make(map[string]struct{}),
	}
}

// SetBackup attaches an optional secondary sink for persisted readings.
func (s *Service) SetBackup(b BackupWriter) {
	s.backup = b
}

// GetOrFetch returns the reading for a location, serving the cache while the
// entry is fresh. Concurrent callers for the same coordinate key share a
// single underlying acquisition. The returned bool reports a cache hit.
func (s *Service) GetOrFetch(ctx context.Context, loc Location) (CombinedReading, bool, error) {
	key := loc.Key()

	if r, ok := s.cached(key); ok {
		if s.metrics != nil {
			s.metrics.CacheHitsTotal.Inc()
		}
		return r, true, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMissTotal.Inc()
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have refreshed the entry while we
		// waited on the flight group.
		if r, ok := s.cached(key); ok {
			return r, nil
		}
		return s.acquire(ctx, loc, key), nil
	})
	if err != nil {
		return CombinedReading{}, false, err
	}
	return v.(CombinedReading), false, nil
}

// acquire performs one full acquisition cycle and replaces the cache entry.
func (s *Service) acquire(ctx context.Context, loc Location, key string) CombinedReading {
	s.setActive(key, true)
	defer s.setActive(key, false)

	start := s.now()
	readings, live := s.coordinator.Acquire(ctx, loc)
	finished := s.now()

	combined := CombineReadings(loc, readings, live, finished.Sub(start), finished)

	if s.metrics != nil {
		s.metrics.ScrapeDuration.Observe(finished.Sub(start).Seconds())
		if !live {
			s.metrics.OfflineCycles.Inc()
		}
		for name, r := range combined.Readings {
			outcome := "success"
			if !r.Success {
				outcome = "failure"
			}
			s.metrics.RecordScrape(string(name), outcome)
		}
	}

	persisted := s.persist(ctx, combined)

	s.mu.Lock()
	s.cache[key] = cacheEntry{reading: combined, fetchedAt: finished}
	if persisted {
		s.lastSuccess = finished
	}
	s.mu.Unlock()

	return combined
}

// persist appends the reading to the store and the optional backup. A write
// failure forfeits that cycle's durability but must not fail the acquisition.
func (s *Service) persist(ctx context.Context, r CombinedReading) bool {
	ok := true
	if err := s.store.InsertReading(ctx, r); err != nil {
		log.Printf("ERROR: failed to persist reading for %s: %v", r.Location.Key(), err)
		s.metrics.RecordDBError("insert")
		ok = false
	} else if s.metrics != nil {
		s.metrics.RecordsWritten.Inc()
	}

	if s.backup != nil {
		if err := s.backup.Append(r); err != nil {
			log.Printf("ERROR: file backup append failed for %s: %v", r.Location.Key(), err)
		}
	}
	return ok
}

func (s *Service) cached(key string) (CombinedReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok {
		return CombinedReading{}, false
	}
	if s.now().Sub(entry.fetchedAt) >= s.freshness {
		return CombinedReading{}, false
	}
	return entry.reading, true
}

func (s *Service) setActive(key string, on bool) {
	s.mu.Lock()
	if on {
		s.active[key] = struct{}{}
	} else {
		delete(s.active, key)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		if on {
			s.metrics.ActiveScrapes.Inc()
		} else {
			s.metrics.ActiveScrapes.Dec()
		}
	}
}

// Online re-runs the connectivity probe.
func (s *Service) Online(ctx context.Context) bool {
	return s.coordinator.Online(ctx)
}

// ActiveTasks returns the number of acquisitions currently in flight.
func (s *Service) ActiveTasks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// CachedLocations lists the coordinate keys currently held in the cache.
func (s *Service) CachedLocations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.cache))
	for k := range s.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClearCache drops the entry for one coordinate key, or every entry when key
// is empty, and returns the number of entries removed.
func (s *Service) ClearCache(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		n := len(s.cache)
		s.cache = make(map[string]cacheEntry)
		return n
	}
	if _, ok := s.cache[key]; ok {
		delete(s.cache, key)
		return 1
	}
	return 0
}

// LastSuccessfulScrape returns when a reading was last durably persisted,
// or nil before the first successful cycle.
func (s *Service) LastSuccessfulScrape() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastSuccess.IsZero() {
		return nil
	}
	t := s.lastSuccess
	return &t
}
