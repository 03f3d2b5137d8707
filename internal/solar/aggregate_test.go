package solar

import (
	"testing"
	"time"
)

func fptr(v float64) *float64 { return &v }

// TestCombineReadingsFillsMissingSources verifies that a partial input still
// yields a complete record, with failed placeholders for absent sources.
func TestCombineReadingsFillsMissingSources(t *testing.T) {
	loc := Location{Name: "Depok", Lat: -6.4025, Lng: 106.7942}
	now := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)

	gsa := NewPartialReading(SourceGSA, true, QualityGood, now)
	gsa.Set(MetricGHI, 4.9)

	combined := CombineReadings(loc, map[SourceName]PartialReading{SourceGSA: gsa}, true, 1500*time.Millisecond, now)

	if len(combined.Readings) != len(AllSources()) {
		t.Fatalf("expected %d readings, got %d", len(AllSources()), len(combined.Readings))
	}
	if combined.SourcesScraped != 1 {
		t.Fatalf("expected sources_scraped=1, got %d", combined.SourcesScraped)
	}
	if combined.ScrapeDurationMS != 1500 {
		t.Fatalf("expected 1500ms duration, got %d", combined.ScrapeDurationMS)
	}
	if !combined.IsLive {
		t.Fatal("expected is_live")
	}

	for _, source := range []SourceName{SourcePVGIS, SourceBMKG} {
		r, ok := combined.Readings[source]
		if !ok {
			t.Fatalf("missing placeholder for %s", source)
		}
		if r.Success || r.Quality != QualityError {
			t.Errorf("%s placeholder: expected success=false quality=%q, got success=%t quality=%q",
				source, QualityError, r.Success, r.Quality)
		}
		for _, metric := range MetricsFor(source) {
			if _, ok := r.Metrics[metric]; !ok {
				t.Errorf("%s placeholder missing metric key %q", source, metric)
			}
		}
	}
}

// TestBlendPrecedence verifies the per-field source precedence of the display
// view.
func TestBlendPrecedence(t *testing.T) {
	now := time.Now()
	loc := Location{Lat: -6.4, Lng: 106.8}

	gsa := NewPartialReading(SourceGSA, true, QualityGood, now)
	gsa.Set(MetricGHI, 5.1)
	gsa.Set(MetricDNI, 4.3)

	pvgis := NewPartialReading(SourcePVGIS, true, QualityExcellent, now)
	pvgis.Set(MetricGHI, 4.7)
	pvgis.Set(MetricPVOutput, 3.9)

	bmkg := NewPartialReading(SourceBMKG, true, QualityGood, now)
	bmkg.Set(MetricGHI, 4.2)
	bmkg.Set(MetricTemperature, 29.5)
	bmkg.Set(MetricHumidity, 71.0)

	all := CombineReadings(loc, map[SourceName]PartialReading{
		SourceGSA: gsa, SourcePVGIS: pvgis, SourceBMKG: bmkg,
	}, true, 0, now)

	view := Blend(all)
	if view.GHI == nil || *view.GHI != 5.1 {
		t.Fatalf("expected GSA GHI 5.1, got %v", view.GHI)
	}
	if view.IrradianceSource != string(SourceGSA) {
		t.Fatalf("expected irradiance source gsa, got %q", view.IrradianceSource)
	}
	if view.Temperature == nil || *view.Temperature != 29.5 {
		t.Fatalf("expected BMKG temperature 29.5, got %v", view.Temperature)
	}
	if view.WeatherSource != string(SourceBMKG) {
		t.Fatalf("expected weather source bmkg, got %q", view.WeatherSource)
	}

	// Without GSA irradiance, PVGIS takes over.
	noGSA := CombineReadings(loc, map[SourceName]PartialReading{
		SourcePVGIS: pvgis, SourceBMKG: bmkg,
	}, true, 0, now)
	view = Blend(noGSA)
	if view.GHI == nil || *view.GHI != 4.7 {
		t.Fatalf("expected PVGIS GHI 4.7, got %v", view.GHI)
	}
	if view.IrradianceSource != string(SourcePVGIS) {
		t.Fatalf("expected irradiance source pvgis, got %q", view.IrradianceSource)
	}

	// BMKG GHI is the last resort.
	onlyBMKG := CombineReadings(loc, map[SourceName]PartialReading{SourceBMKG: bmkg}, true, 0, now)
	view = Blend(onlyBMKG)
	if view.GHI == nil || *view.GHI != 4.2 {
		t.Fatalf("expected BMKG GHI 4.2, got %v", view.GHI)
	}
	if view.IrradianceSource != string(SourceBMKG) {
		t.Fatalf("expected irradiance source bmkg, got %q", view.IrradianceSource)
	}
}
