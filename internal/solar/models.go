package solar

import (
	"fmt"
	"time"
)

// SourceName identifies one of the external data sources.
type SourceName string

const (
	// SourceGSA is the Global Solar Atlas map front end (browser scrape).
	SourceGSA SourceName = "gsa"
	// SourcePVGIS is the European Commission PVGIS performance API.
	SourcePVGIS SourceName = "pvgis"
	// SourceBMKG is the Indonesian meteorological agency API.
	SourceBMKG SourceName = "bmkg"
)

// AllSources lists every source in a stable order.
func AllSources() []SourceName {
	return []SourceName{SourceGSA, SourcePVGIS, SourceBMKG}
}

// ValidSource reports whether s names a known source.
func ValidSource(s string) bool {
	switch SourceName(s) {
	case SourceGSA, SourcePVGIS, SourceBMKG:
		return true
	}
	return false
}

// Quality is the provenance/quality tag attached to every reading.
type Quality string

const (
	QualityExcellent        Quality = "excellent"
	QualityGood             Quality = "good"
	QualityEstimated        Quality = "estimated"
	QualityOfflineEstimated Quality = "offline_estimated"
	QualityError            Quality = "error"
)

// Metric names. Each source reports a fixed subset; missing values are
// represented as nil, never omitted from the map.
const (
	MetricGHI         = "ghi"
	MetricDNI         = "dni"
	MetricDHI         = "dhi"
	MetricPVOutput    = "pv_output"
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
)

// MetricsFor returns the fixed metric set reported by a source.
func MetricsFor(source SourceName) []string {
	switch source {
	case SourceGSA:
		return []string{MetricGHI, MetricDNI, MetricDHI, MetricPVOutput}
	case SourcePVGIS:
		return []string{MetricGHI, MetricDNI, MetricPVOutput}
	case SourceBMKG:
		return []string{MetricGHI, MetricTemperature, MetricHumidity}
	}
	return nil
}

// Location is a named geographic point. Coordinates are the physical
// identity: two names at the same rounded coordinates are the same place.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Key returns the canonical cache/store key for this location, rounded to
// 4 decimal digits to absorb floating-point noise in user-supplied values.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f,%.4f", l.Lat, l.Lng)
}

// Valid reports whether the coordinates are inside the WGS84 ranges.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// PartialReading is the result of one source for one location at one instant.
// The metric map always carries the source's full fixed key set.
type PartialReading struct {
	Source    SourceName          `json:"source"`
	Success   bool                `json:"success"`
	Metrics   map[string]*float64 `json:"metrics"`
	Quality   Quality             `json:"quality"`
	Timestamp time.Time           `json:"timestamp"`
}

// NewPartialReading builds a reading with the source's fixed metric keys
// initialized to nil.
func NewPartialReading(source SourceName, success bool, quality Quality, ts time.Time) PartialReading {
	metrics := make(map[string]*float64, 4)
	for _, m := range MetricsFor(source) {
		metrics[m] = nil
	}
	return PartialReading{
		Source:    source,
		Success:   success,
		Metrics:   metrics,
		Quality:   quality,
		Timestamp: ts,
	}
}

// Set assigns a metric value. Unknown keys for the source are ignored so the
// record shape stays fixed.
func (r PartialReading) Set(metric string, v float64) {
	if _, ok := r.Metrics[metric]; ok {
		val := v
		r.Metrics[metric] = &val
	}
}

// Metric returns the value for a metric, or nil when missing.
func (r PartialReading) Metric(metric string) *float64 {
	return r.Metrics[metric]
}

// CombinedReading is the per-location, per-timestamp aggregate of all three
// sources. It is immutable once persisted; the store is append-only.
type CombinedReading struct {
	Location         Location                       `json:"location"`
	Readings         map[SourceName]PartialReading  `json:"readings"`
	SourcesScraped   int                            `json:"sources_scraped"`
	ScrapeDurationMS int64                          `json:"scrape_duration_ms"`
	IsLive           bool                           `json:"is_live"`
	ScrapedAt        time.Time                      `json:"scraping_timestamp"`
}

// BlendedView is a read-time convenience for display: one value per metric
// chosen by per-field precedence. It is never persisted.
type BlendedView struct {
	GHI              *float64 `json:"ghi"`
	DNI              *float64 `json:"dni"`
	DHI              *float64 `json:"dhi"`
	PVOutput         *float64 `json:"pv_output"`
	Temperature      *float64 `json:"temperature"`
	Humidity         *float64 `json:"humidity"`
	IrradianceSource string   `json:"irradiance_source,omitempty"`
	WeatherSource    string   `json:"weather_source,omitempty"`
}
