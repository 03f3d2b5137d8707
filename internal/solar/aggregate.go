package solar

import "time"

// CombineReadings merges the three per-source readings into one
// CombinedReading. Each source's metrics are kept separately so persisted
// data is always traceable to its origin; sources_scraped counts the
// adapters that reported success.
func CombineReadings(loc Location, readings map[SourceName]PartialReading, live bool, duration time.Duration, at time.Time) CombinedReading {
	merged := make(map[SourceName]PartialReading, len(AllSources()))
	scraped := 0

	for _, source := range AllSources() {
		r, ok := readings[source]
		if !ok {
			// A coordinator bug rather than a source failure, but the
			// combined record shape must stay complete.
			r = NewPartialReading(source, false, QualityError, at)
		}
		if r.Success {
			scraped++
		}
		merged[source] = r
	}

	return CombinedReading{
		Location:         loc,
		Readings:         merged,
		SourcesScraped:   scraped,
		ScrapeDurationMS: duration.Milliseconds(),
		IsLive:           live,
		ScrapedAt:        at.UTC(),
	}
}

// Blend derives the display view from one combined reading. Weather fields
// prefer the meteorological source; irradiance prefers GSA, then PVGIS.
// Nothing here is ever written back to the store.
func Blend(r CombinedReading) BlendedView {
	var view BlendedView

	if bmkg, ok := r.Readings[SourceBMKG]; ok {
		view.Temperature = bmkg.Metric(MetricTemperature)
		view.Humidity = bmkg.Metric(MetricHumidity)
		if view.Temperature != nil || view.Humidity != nil {
			view.WeatherSource = string(SourceBMKG)
		}
	}

	for _, source := range []SourceName{SourceGSA, SourcePVGIS} {
		pr, ok := r.Readings[source]
		if !ok || pr.Metric(MetricGHI) == nil {
			continue
		}
		view.GHI = pr.Metric(MetricGHI)
		view.DNI = pr.Metric(MetricDNI)
		view.DHI = pr.Metric(MetricDHI)
		view.PVOutput = pr.Metric(MetricPVOutput)
		view.IrradianceSource = string(source)
		break
	}

	// BMKG is the irradiance fallback of last resort (GHI only).
	if view.GHI == nil {
		if bmkg, ok := r.Readings[SourceBMKG]; ok && bmkg.Metric(MetricGHI) != nil {
			view.GHI = bmkg.Metric(MetricGHI)
			view.IrradianceSource = string(SourceBMKG)
		}
	}

	return view
}
