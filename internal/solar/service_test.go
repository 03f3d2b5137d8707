package solar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gritasolar/solar-data-aggregation/pkg/metrics"
)

type recordingStore struct {
	mu        sync.Mutex
	rows      []CombinedReading
	insertErr error
}

func (s *recordingStore) InsertReading(_ context.Context, r CombinedReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows = append(s.rows, r)
	return nil
}

func (s *recordingStore) SourceSeries(_ context.Context, _ SourceName, _ int) ([]CombinedReading, error) {
	return nil, nil
}

func (s *recordingStore) LatestNear(_ context.Context, _, _ float64) (CombinedReading, error) {
	return CombinedReading{}, errors.New("not found")
}

func (s *recordingStore) Stats(_ context.Context) (StoreStats, error) {
	return StoreStats{}, nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// countingSource counts fetches and optionally blocks until released.
type countingSource struct {
	name    SourceName
	fetches int64
	block   chan struct{}
}

func (s *countingSource) Name() SourceName { return s.name }

func (s *countingSource) Fetch(_ context.Context, _ Location) PartialReading {
	atomic.AddInt64(&s.fetches, 1)
	if s.block != nil {
		<-s.block
	}
	r := NewPartialReading(s.name, true, QualityGood, time.Now())
	r.Set(MetricGHI, 5.0)
	return r
}

func newTestService(src Source, st Store) *Service {
	coord := NewCoordinator(stubProbe{online: true}, time.Second, src)
	return NewService(coord, st, time.Hour, metrics.NewCollector("test"))
}

// TestServiceCacheHit verifies that a fresh cache entry is served without
// re-acquisition.
func TestServiceCacheHit(t *testing.T) {
	src := &countingSource{name: SourceGSA}
	st := &recordingStore{}
	svc := newTestService(src, st)

	loc := Location{Name: "Depok", Lat: -6.4025, Lng: 106.7942}

	first, cached, err := svc.GetOrFetch(context.Background(), loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Fatal("first call should not be a cache hit")
	}

	second, cached, err := svc.GetOrFetch(context.Background(), loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cached {
		t.Fatal("second call should be a cache hit")
	}
	if !second.ScrapedAt.Equal(first.ScrapedAt) {
		t.Fatalf("cache hit returned a different reading: %v vs %v", second.ScrapedAt, first.ScrapedAt)
	}
	if n := atomic.LoadInt64(&src.fetches); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
	if st.count() != 1 {
		t.Fatalf("expected 1 persisted row, got %d", st.count())
	}
}

// TestServiceCacheExpiry verifies that an entry older than the freshness
// window triggers re-acquisition.
func TestServiceCacheExpiry(t *testing.T) {
	src := &countingSource{name: SourceGSA}
	st := &recordingStore{}
	svc := newTestService(src, st)

	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	current := base
	svc.now = func() time.Time { return current }

	loc := Location{Lat: -6.4025, Lng: 106.7942}

	if _, cached, _ := svc.GetOrFetch(context.Background(), loc); cached {
		t.Fatal("first call should not be a cache hit")
	}

	current = base.Add(30 * time.Minute)
	if _, cached, _ := svc.GetOrFetch(context.Background(), loc); !cached {
		t.Fatal("expected cache hit inside freshness window")
	}

	current = base.Add(2 * time.Hour)
	if _, cached, _ := svc.GetOrFetch(context.Background(), loc); cached {
		t.Fatal("expected re-acquisition after freshness window")
	}
	if n := atomic.LoadInt64(&src.fetches); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
}

// TestServiceSingleflight verifies that concurrent callers for the same
// coordinate key share one underlying acquisition.
func TestServiceSingleflight(t *testing.T) {
	src := &countingSource{name: SourceGSA, block: make(chan struct{})}
	st := &recordingStore{}
	svc := newTestService(src, st)

	loc := Location{Lat: -6.4025, Lng: 106.7942}

	const callers = 4
	var wg sync.WaitGroup
	results := make([]CombinedReading, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := svc.GetOrFetch(context.Background(), loc)
			if err != nil {
				t.Errorf("caller %d: unexpected error: %v", i, err)
			}
			results[i] = r
		}(i)
	}

	// Give the callers time to pile onto the in-flight acquisition.
	time.Sleep(100 * time.Millisecond)
	close(src.block)
	wg.Wait()

	if n := atomic.LoadInt64(&src.fetches); n != 1 {
		t.Fatalf("expected 1 shared fetch, got %d", n)
	}
	for i := 1; i < callers; i++ {
		if !results[i].ScrapedAt.Equal(results[0].ScrapedAt) {
			t.Fatalf("caller %d got a different reading", i)
		}
	}
	if st.count() != 1 {
		t.Fatalf("expected 1 persisted row, got %d", st.count())
	}
}

// TestServicePersistFailure verifies that a store write failure does not fail
// the acquisition, and that the reading is still cached and returned.
func TestServicePersistFailure(t *testing.T) {
	src := &countingSource{name: SourceGSA}
	st := &recordingStore{insertErr: errors.New("db down")}
	svc := newTestService(src, st)

	loc := Location{Lat: -6.4025, Lng: 106.7942}

	reading, cached, err := svc.GetOrFetch(context.Background(), loc)
	if err != nil {
		t.Fatalf("acquisition must not fail on persistence error, got: %v", err)
	}
	if cached {
		t.Fatal("first call should not be a cache hit")
	}
	if reading.SourcesScraped != 1 {
		t.Fatalf("expected sources_scraped=1, got %d", reading.SourcesScraped)
	}
	if svc.LastSuccessfulScrape() != nil {
		t.Fatal("last successful scrape must stay unset when persistence fails")
	}

	if _, cached, _ := svc.GetOrFetch(context.Background(), loc); !cached {
		t.Fatal("reading should still be cached after persistence failure")
	}
}

// TestServiceClearCache verifies targeted and full cache invalidation.
func TestServiceClearCache(t *testing.T) {
	src := &countingSource{name: SourceGSA}
	svc := newTestService(src, &recordingStore{})

	a := Location{Lat: -6.4025, Lng: 106.7942}
	b := Location{Lat: -6.2088, Lng: 106.8456}
	svc.GetOrFetch(context.Background(), a)
	svc.GetOrFetch(context.Background(), b)

	if got := len(svc.CachedLocations()); got != 2 {
		t.Fatalf("expected 2 cached locations, got %d", got)
	}
	if n := svc.ClearCache(a.Key()); n != 1 {
		t.Fatalf("expected 1 cleared entry, got %d", n)
	}
	if n := svc.ClearCache(""); n != 1 {
		t.Fatalf("expected 1 remaining entry cleared, got %d", n)
	}
	if got := len(svc.CachedLocations()); got != 0 {
		t.Fatalf("expected empty cache, got %d entries", got)
	}
}
