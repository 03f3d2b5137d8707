package solar

import (
	"context"
	"time"
)

// Source abstracts one external data source (GSA, PVGIS, BMKG).
//
// Fetch never returns an error: ordinary network/parse failures are recovered
// inside the adapter by substituting an estimate and tagging the reading with
// success=false and quality "error". Downstream code only inspects the flags.
type Source interface {
	Name() SourceName
	Fetch(ctx context.Context, loc Location) PartialReading
}

// ConnectivityProbe reports whether the process has external network
// reachability. It is re-evaluated on every acquisition cycle.
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

// StoreStats are the summary counts served by /database/stats.
type StoreStats struct {
	TotalRecords    int        `json:"total_records"`
	UniqueLocations int        `json:"unique_locations"`
	OnlineScrapes   int        `json:"online_scrapes"`
	OfflineScrapes  int        `json:"offline_scrapes"`
	Recent24h       int        `json:"recent_records_24h"`
	LatestRecord    *time.Time `json:"latest_record"`
}

// Store is the contract the persistence layer must satisfy. Rows are
// append-only: there is no update or delete path.
type Store interface {
	// InsertReading appends one row for the combined reading.
	InsertReading(ctx context.Context, r CombinedReading) error

	// SourceSeries returns up to limit most recent rows that carry a
	// non-null GHI for the given source, ordered by timestamp ascending.
	SourceSeries(ctx context.Context, source SourceName, limit int) ([]CombinedReading, error)

	// LatestNear returns the most recent row within 0.1 degrees of the
	// given coordinates, or ErrNotFound from the implementing package.
	LatestNear(ctx context.Context, lat, lng float64) (CombinedReading, error)

	// Stats returns summary aggregates over all rows.
	Stats(ctx context.Context) (StoreStats, error)
}

// BackupWriter is an optional secondary sink for combined readings. The
// relational store stays authoritative; backup failures are non-fatal.
type BackupWriter interface {
	Append(r CombinedReading) error
}
