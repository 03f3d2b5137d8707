package solar

import (
	"sort"
	"time"
)

// SeriesPoint is one charting sample: a timestamp plus the source's metric
// values. Derived at query time, never stored.
type SeriesPoint map[string]interface{}

// SourceSeries is the reshaped per-source time series served to the
// presentational layer.
type SourceSeries struct {
	Source      SourceName   `json:"source"`
	Points      []SeriesPoint `json:"hourly_data"`
	AvgGHI      float64      `json:"avg_ghi"`
	AvgPVOutput float64      `json:"avg_pv_output"`
	LastUpdate  *time.Time   `json:"last_update"`
	Locations   []string     `json:"locations"`
	RecordCount int          `json:"record_count"`
}

// BuildSourceSeries regroups persisted rows into one sequence per metric for
// a single source. Rows without a GHI value for the source are skipped.
// An empty input yields zero-valued aggregates, not an error.
func BuildSourceSeries(source SourceName, rows []CombinedReading) SourceSeries {
	series := SourceSeries{
		Source:    source,
		Points:    []SeriesPoint{},
		Locations: []string{},
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ScrapedAt.Before(rows[j].ScrapedAt)
	})

	var (
		sumGHI, sumPV   float64
		nGHI, nPV       int
		seenLocations   = map[string]struct{}{}
	)

	for _, row := range rows {
		reading, ok := row.Readings[source]
		if !ok || reading.Metric(MetricGHI) == nil {
			continue
		}

		point := SeriesPoint{"timestamp": row.ScrapedAt}
		for _, metric := range MetricsFor(source) {
			if v := reading.Metric(metric); v != nil {
				point[metric] = *v
			}
		}
		series.Points = append(series.Points, point)

		sumGHI += *reading.Metric(MetricGHI)
		nGHI++
		if pv := reading.Metric(MetricPVOutput); pv != nil {
			sumPV += *pv
			nPV++
		}

		if _, seen := seenLocations[row.Location.Name]; !seen && row.Location.Name != "" {
			seenLocations[row.Location.Name] = struct{}{}
			series.Locations = append(series.Locations, row.Location.Name)
		}

		ts := row.ScrapedAt
		series.LastUpdate = &ts
	}

	if nGHI > 0 {
		series.AvgGHI = sumGHI / float64(nGHI)
	}
	if nPV > 0 {
		series.AvgPVOutput = sumPV / float64(nPV)
	}
	series.RecordCount = len(series.Points)

	return series
}
