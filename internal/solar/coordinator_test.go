package solar

import (
	"context"
	"testing"
	"time"
)

type stubProbe struct{ online bool }

func (p stubProbe) Online(_ context.Context) bool { return p.online }

type stubSource struct {
	name  SourceName
	fetch func(ctx context.Context, loc Location) PartialReading
}

func (s stubSource) Name() SourceName { return s.name }

func (s stubSource) Fetch(ctx context.Context, loc Location) PartialReading {
	return s.fetch(ctx, loc)
}

// TestCoordinatorOfflineFallback verifies that a failed connectivity probe
// routes acquisition to the offline synthesizer.
func TestCoordinatorOfflineFallback(t *testing.T) {
	c := NewCoordinator(stubProbe{online: false}, time.Second)

	readings, live := c.Acquire(context.Background(), Location{Lat: -6.4, Lng: 106.8})
	if live {
		t.Fatal("expected live=false when probe fails")
	}
	if len(readings) != len(AllSources()) {
		t.Fatalf("expected %d readings, got %d", len(AllSources()), len(readings))
	}
	for source, r := range readings {
		if r.Quality != QualityOfflineEstimated {
			t.Errorf("%s: expected quality %q, got %q", source, QualityOfflineEstimated, r.Quality)
		}
	}
}

// TestCoordinatorParallelFetch verifies that every registered source
// contributes a reading on the live path.
func TestCoordinatorParallelFetch(t *testing.T) {
	makeSource := func(name SourceName) Source {
		return stubSource{
			name: name,
			fetch: func(_ context.Context, _ Location) PartialReading {
				r := NewPartialReading(name, true, QualityGood, time.Now())
				r.Set(MetricGHI, 4.5)
				return r
			},
		}
	}

	c := NewCoordinator(stubProbe{online: true}, time.Second,
		makeSource(SourceGSA), makeSource(SourcePVGIS), makeSource(SourceBMKG))

	readings, live := c.Acquire(context.Background(), Location{Lat: -6.4, Lng: 106.8})
	if !live {
		t.Fatal("expected live=true")
	}
	for _, source := range AllSources() {
		r, ok := readings[source]
		if !ok {
			t.Fatalf("missing reading for %s", source)
		}
		if !r.Success {
			t.Errorf("%s: expected success", source)
		}
	}
}
