package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
	"github.com/gritasolar/solar-data-aggregation/pkg/metrics"
)

// ErrNotFound is returned when no row matches a point query.
var ErrNotFound = errors.New("no solar data for location")

// Config holds the PostgreSQL connection configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore persists combined readings in the append-only solar_data
// table. There is no update or delete path.
type PostgresStore struct {
	db      *sqlx.DB
	metrics *metrics.Collector
}

// NewPostgresStore opens the connection pool, verifies connectivity and
// ensures the schema exists.
func NewPostgresStore(cfg Config, collector *metrics.Collector) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db, metrics: collector}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS solar_data (
		id                 BIGSERIAL PRIMARY KEY,
		location_name      TEXT NOT NULL,
		latitude           DOUBLE PRECISION NOT NULL,
		longitude          DOUBLE PRECISION NOT NULL,
		gsa_success        BOOLEAN NOT NULL,
		gsa_ghi            DOUBLE PRECISION,
		gsa_dni            DOUBLE PRECISION,
		gsa_dhi            DOUBLE PRECISION,
		gsa_pv_output      DOUBLE PRECISION,
		gsa_quality        TEXT NOT NULL,
		pvgis_success      BOOLEAN NOT NULL,
		pvgis_ghi          DOUBLE PRECISION,
		pvgis_dni          DOUBLE PRECISION,
		pvgis_pv_output    DOUBLE PRECISION,
		pvgis_quality      TEXT NOT NULL,
		bmkg_success       BOOLEAN NOT NULL,
		bmkg_ghi           DOUBLE PRECISION,
		bmkg_temperature   DOUBLE PRECISION,
		bmkg_humidity      DOUBLE PRECISION,
		bmkg_quality       TEXT NOT NULL,
		sources_scraped    INT NOT NULL,
		scrape_duration_ms BIGINT NOT NULL,
		is_online_scrape   BOOLEAN NOT NULL,
		raw_payload        JSONB,
		scraping_timestamp TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_solar_data_scraped_at ON solar_data (scraping_timestamp);
	CREATE INDEX IF NOT EXISTS idx_solar_data_coords ON solar_data (latitude, longitude);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// solarDataRow mirrors one solar_data row. Nullable metrics are pointers.
type solarDataRow struct {
	ID                int64     `db:"id"`
	LocationName      string    `db:"location_name"`
	Latitude          float64   `db:"latitude"`
	Longitude         float64   `db:"longitude"`
	GSASuccess        bool      `db:"gsa_success"`
	GSAGHI            *float64  `db:"gsa_ghi"`
	GSADNI            *float64  `db:"gsa_dni"`
	GSADHI            *float64  `db:"gsa_dhi"`
	GSAPVOutput       *float64  `db:"gsa_pv_output"`
	GSAQuality        string    `db:"gsa_quality"`
	PVGISSuccess      bool      `db:"pvgis_success"`
	PVGISGHI          *float64  `db:"pvgis_ghi"`
	PVGISDNI          *float64  `db:"pvgis_dni"`
	PVGISPVOutput     *float64  `db:"pvgis_pv_output"`
	PVGISQuality      string    `db:"pvgis_quality"`
	BMKGSuccess       bool      `db:"bmkg_success"`
	BMKGGHI           *float64  `db:"bmkg_ghi"`
	BMKGTemperature   *float64  `db:"bmkg_temperature"`
	BMKGHumidity      *float64  `db:"bmkg_humidity"`
	BMKGQuality       string    `db:"bmkg_quality"`
	SourcesScraped    int       `db:"sources_scraped"`
	ScrapeDurationMS  int64     `db:"scrape_duration_ms"`
	IsOnlineScrape    bool      `db:"is_online_scrape"`
	RawPayload        []byte    `db:"raw_payload"`
	ScrapingTimestamp time.Time `db:"scraping_timestamp"`
	CreatedAt         time.Time `db:"created_at"`
}

// InsertReading appends one row for the combined reading.
func (s *PostgresStore) InsertReading(ctx context.Context, r solar.CombinedReading) error {
	row := rowFromReading(r)

	const query = `
	INSERT INTO solar_data (
		location_name, latitude, longitude,
		gsa_success, gsa_ghi, gsa_dni, gsa_dhi, gsa_pv_output, gsa_quality,
		pvgis_success, pvgis_ghi, pvgis_dni, pvgis_pv_output, pvgis_quality,
		bmkg_success, bmkg_ghi, bmkg_temperature, bmkg_humidity, bmkg_quality,
		sources_scraped, scrape_duration_ms, is_online_scrape, raw_payload,
		scraping_timestamp, created_at
	) VALUES (
		:location_name, :latitude, :longitude,
		:gsa_success, :gsa_ghi, :gsa_dni, :gsa_dhi, :gsa_pv_output, :gsa_quality,
		:pvgis_success, :pvgis_ghi, :pvgis_dni, :pvgis_pv_output, :pvgis_quality,
		:bmkg_success, :bmkg_ghi, :bmkg_temperature, :bmkg_humidity, :bmkg_quality,
		:sources_scraped, :scrape_duration_ms, :is_online_scrape, :raw_payload,
		:scraping_timestamp, :created_at
	)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		s.metrics.RecordDBError("insert")
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// sourceGHIColumn whitelists the per-source GHI column used by SourceSeries.
func sourceGHIColumn(source solar.SourceName) (string, error) {
	switch source {
	case solar.SourceGSA:
		return "gsa_ghi", nil
	case solar.SourcePVGIS:
		return "pvgis_ghi", nil
	case solar.SourceBMKG:
		return "bmkg_ghi", nil
	}
	return "", fmt.Errorf("unknown source %q", source)
}

// SourceSeries returns the most recent limit rows carrying a non-null GHI
// for the source, reshaped oldest-first.
func (s *PostgresStore) SourceSeries(ctx context.Context, source solar.SourceName, limit int) ([]solar.CombinedReading, error) {
	col, err := sourceGHIColumn(source)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
	SELECT * FROM (
		SELECT * FROM solar_data
		WHERE %s IS NOT NULL
		ORDER BY scraping_timestamp DESC
		LIMIT $1
	) recent
	ORDER BY scraping_timestamp ASC`, col)

	var rows []solarDataRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		s.metrics.RecordDBError("select")
		return nil, fmt.Errorf("failed to select source series: %w", err)
	}

	readings := make([]solar.CombinedReading, 0, len(rows))
	for _, row := range rows {
		readings = append(readings, readingFromRow(row))
	}
	return readings, nil
}

// LatestNear returns the most recent row within 0.1 degrees of the point.
func (s *PostgresStore) LatestNear(ctx context.Context, lat, lng float64) (solar.CombinedReading, error) {
	const query = `
	SELECT * FROM solar_data
	WHERE ABS(latitude - $1) < 0.1 AND ABS(longitude - $2) < 0.1
	ORDER BY scraping_timestamp DESC
	LIMIT 1`

	var row solarDataRow
	err := s.db.GetContext(ctx, &row, query, lat, lng)
	if errors.Is(err, sql.ErrNoRows) {
		return solar.CombinedReading{}, ErrNotFound
	}
	if err != nil {
		s.metrics.RecordDBError("get")
		return solar.CombinedReading{}, fmt.Errorf("failed to query latest reading: %w", err)
	}
	return readingFromRow(row), nil
}

// Stats computes the summary aggregates over all rows.
func (s *PostgresStore) Stats(ctx context.Context) (solar.StoreStats, error) {
	const query = `
	SELECT
		COUNT(*)                                                                   AS total_records,
		COUNT(DISTINCT (ROUND(latitude::numeric, 4), ROUND(longitude::numeric, 4))) AS unique_locations,
		COUNT(*) FILTER (WHERE is_online_scrape)                                   AS online_scrapes,
		COUNT(*) FILTER (WHERE NOT is_online_scrape)                               AS offline_scrapes,
		COUNT(*) FILTER (WHERE scraping_timestamp > NOW() - INTERVAL '24 hours')   AS recent_records_24h,
		MAX(scraping_timestamp)                                                    AS latest_record
	FROM solar_data`

	var row struct {
		TotalRecords    int        `db:"total_records"`
		UniqueLocations int        `db:"unique_locations"`
		OnlineScrapes   int        `db:"online_scrapes"`
		OfflineScrapes  int        `db:"offline_scrapes"`
		Recent24h       int        `db:"recent_records_24h"`
		LatestRecord    *time.Time `db:"latest_record"`
	}
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		s.metrics.RecordDBError("stats")
		return solar.StoreStats{}, fmt.Errorf("failed to query stats: %w", err)
	}

	return solar.StoreStats{
		TotalRecords:    row.TotalRecords,
		UniqueLocations: row.UniqueLocations,
		OnlineScrapes:   row.OnlineScrapes,
		OfflineScrapes:  row.OfflineScrapes,
		Recent24h:       row.Recent24h,
		LatestRecord:    row.LatestRecord,
	}, nil
}

func rowFromReading(r solar.CombinedReading) solarDataRow {
	raw, err := json.Marshal(r)
	if err != nil {
		raw = nil
	}

	gsa := r.Readings[solar.SourceGSA]
	pvgis := r.Readings[solar.SourcePVGIS]
	bmkg := r.Readings[solar.SourceBMKG]

	return solarDataRow{
		LocationName:      r.Location.Name,
		Latitude:          r.Location.Lat,
		Longitude:         r.Location.Lng,
		GSASuccess:        gsa.Success,
		GSAGHI:            gsa.Metric(solar.MetricGHI),
		GSADNI:            gsa.Metric(solar.MetricDNI),
		GSADHI:            gsa.Metric(solar.MetricDHI),
		GSAPVOutput:       gsa.Metric(solar.MetricPVOutput),
		GSAQuality:        string(gsa.Quality),
		PVGISSuccess:      pvgis.Success,
		PVGISGHI:          pvgis.Metric(solar.MetricGHI),
		PVGISDNI:          pvgis.Metric(solar.MetricDNI),
		PVGISPVOutput:     pvgis.Metric(solar.MetricPVOutput),
		PVGISQuality:      string(pvgis.Quality),
		BMKGSuccess:       bmkg.Success,
		BMKGGHI:           bmkg.Metric(solar.MetricGHI),
		BMKGTemperature:   bmkg.Metric(solar.MetricTemperature),
		BMKGHumidity:      bmkg.Metric(solar.MetricHumidity),
		BMKGQuality:       string(bmkg.Quality),
		SourcesScraped:    r.SourcesScraped,
		ScrapeDurationMS:  r.ScrapeDurationMS,
		IsOnlineScrape:    r.IsLive,
		RawPayload:        raw,
		ScrapingTimestamp: r.ScrapedAt,
		CreatedAt:         time.Now().UTC(),
	}
}

func readingFromRow(row solarDataRow) solar.CombinedReading {
	ts := row.ScrapingTimestamp.UTC()

	gsa := solar.NewPartialReading(solar.SourceGSA, row.GSASuccess, solar.Quality(row.GSAQuality), ts)
	setIf(gsa, solar.MetricGHI, row.GSAGHI)
	setIf(gsa, solar.MetricDNI, row.GSADNI)
	setIf(gsa, solar.MetricDHI, row.GSADHI)
	setIf(gsa, solar.MetricPVOutput, row.GSAPVOutput)

	pvgis := solar.NewPartialReading(solar.SourcePVGIS, row.PVGISSuccess, solar.Quality(row.PVGISQuality), ts)
	setIf(pvgis, solar.MetricGHI, row.PVGISGHI)
	setIf(pvgis, solar.MetricDNI, row.PVGISDNI)
	setIf(pvgis, solar.MetricPVOutput, row.PVGISPVOutput)

	bmkg := solar.NewPartialReading(solar.SourceBMKG, row.BMKGSuccess, solar.Quality(row.BMKGQuality), ts)
	setIf(bmkg, solar.MetricGHI, row.BMKGGHI)
	setIf(bmkg, solar.MetricTemperature, row.BMKGTemperature)
	setIf(bmkg, solar.MetricHumidity, row.BMKGHumidity)

	return solar.CombinedReading{
		Location: solar.Location{
			Name: row.LocationName,
			Lat:  row.Latitude,
			Lng:  row.Longitude,
		},
		Readings: map[solar.SourceName]solar.PartialReading{
			solar.SourceGSA:   gsa,
			solar.SourcePVGIS: pvgis,
			solar.SourceBMKG:  bmkg,
		},
		SourcesScraped:   row.SourcesScraped,
		ScrapeDurationMS: row.ScrapeDurationMS,
		IsLive:           row.IsOnlineScrape,
		ScrapedAt:        ts,
	}
}

func setIf(r solar.PartialReading, metric string, v *float64) {
	if v != nil {
		r.Set(metric, *v)
	}
}
