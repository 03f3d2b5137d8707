package solar

import (
	"testing"
	"time"
)

// TestSynthesizeOfflineDeterministic verifies that two calls within the same
// hour bucket produce identical values for the same location.
func TestSynthesizeOfflineDeterministic(t *testing.T) {
	loc := Location{Name: "Depok", Lat: -6.4025, Lng: 106.7942}
	now := time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC)
	later := time.Date(2026, 8, 30, 10, 55, 0, 0, time.UTC)

	a := SynthesizeOffline(loc, now)
	b := SynthesizeOffline(loc, later)

	for _, source := range AllSources() {
		for _, metric := range MetricsFor(source) {
			av := a[source].Metric(metric)
			bv := b[source].Metric(metric)
			if av == nil || bv == nil {
				t.Fatalf("%s/%s: expected non-nil values, got %v and %v", source, metric, av, bv)
			}
			if *av != *bv {
				t.Fatalf("%s/%s: expected identical values within hour bucket, got %f and %f", source, metric, *av, *bv)
			}
		}
	}
}

// TestSynthesizeOfflineVariesByBucket verifies that different hour buckets
// yield different values.
func TestSynthesizeOfflineVariesByBucket(t *testing.T) {
	loc := Location{Lat: -6.4025, Lng: 106.7942}
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	nextDay := now.Add(24 * time.Hour)

	a := SynthesizeOffline(loc, now)[SourceGSA].Metric(MetricGHI)
	b := SynthesizeOffline(loc, nextDay)[SourceGSA].Metric(MetricGHI)

	if a == nil || b == nil {
		t.Fatalf("expected non-nil GHI, got %v and %v", a, b)
	}
	if *a == *b {
		t.Fatalf("expected different values across hour buckets, got %f twice", *a)
	}
}

// TestSynthesizeOfflineNight verifies zero irradiance outside the daylight
// window and the offline quality tag.
func TestSynthesizeOfflineNight(t *testing.T) {
	loc := Location{Lat: -6.2088, Lng: 106.8456}
	night := time.Date(2026, 8, 30, 2, 30, 0, 0, time.UTC)

	readings := SynthesizeOffline(loc, night)
	if len(readings) != len(AllSources()) {
		t.Fatalf("expected %d sources, got %d", len(AllSources()), len(readings))
	}

	for source, r := range readings {
		if r.Quality != QualityOfflineEstimated {
			t.Errorf("%s: expected quality %q, got %q", source, QualityOfflineEstimated, r.Quality)
		}
		if !r.Success {
			t.Errorf("%s: expected success", source)
		}
		ghi := r.Metric(MetricGHI)
		if ghi == nil {
			t.Fatalf("%s: expected non-nil GHI", source)
		}
		if *ghi != 0 {
			t.Errorf("%s: expected zero GHI at night, got %f", source, *ghi)
		}
	}
}
