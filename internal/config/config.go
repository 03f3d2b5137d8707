package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
	"github.com/gritasolar/solar-data-aggregation/internal/store"
)

// AppConfig holds every runtime tunable. Cadence and freshness are
// configurable because the upstream requirements were inconsistent about
// both; the defaults are hourly/1h.
type AppConfig struct {
	Port string

	// Locations is the fixed roster iterated by the scheduler.
	Locations []solar.Location

	// ScrapeCron is the scheduled-acquisition cadence, aligned to the top
	// of the hour by default.
	ScrapeCron string

	// CacheFreshness bounds how long a cached reading is served without
	// re-acquisition.
	CacheFreshness time.Duration

	// InterLocationDelay spaces roster entries apart to bound simultaneous
	// external load.
	InterLocationDelay time.Duration

	// WarmupDelay is the pause between process start and the one-shot
	// warm-up run.
	WarmupDelay time.Duration

	ProbeTimeout time.Duration
	HTTPTimeout  time.Duration

	DB store.Config

	// FileBackupEnabled mirrors persisted readings to a JSON-lines file.
	// Off by default: the relational store is authoritative.
	FileBackupEnabled bool
	FileBackupPath    string

	// GeocoderAPIKey enables reverse geocoding of ad-hoc scrape
	// coordinates into location names. Optional.
	GeocoderAPIKey string
}

// defaultRoster is used when SOLAR_LOCATIONS is unset.
var defaultRoster = []solar.Location{
	{Name: "Depok", Lat: -6.4025, Lng: 106.7942},
	{Name: "Jakarta", Lat: -6.2088, Lng: 106.8456},
	{Name: "Bandung", Lat: -6.9175, Lng: 107.6191},
	{Name: "Surabaya", Lat: -7.2575, Lng: 112.7521},
	{Name: "Yogyakarta", Lat: -7.7956, Lng: 110.3695},
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}
	cfg.Port = getenvDefault("PORT", "8080")
	cfg.ScrapeCron = getenvDefault("SCRAPE_CRON", "0 * * * *")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	var err error
	if cfg.CacheFreshness, err = getenvDuration("CACHE_FRESHNESS", time.Hour); err != nil {
		return nil, err
	}
	if cfg.InterLocationDelay, err = getenvDuration("INTER_LOCATION_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WarmupDelay, err = getenvDuration("WARMUP_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout, err = getenvDuration("PROBE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	cfg.DB = store.Config{
		Host:            getenvDefault("DB_HOST", "localhost"),
		Port:            getenvInt("DB_PORT", 5432),
		User:            getenvDefault("DB_USER", "postgres"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getenvDefault("DB_NAME", "solar_data"),
		SSLMode:         getenvDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getenvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Hour,
	}

	cfg.FileBackupEnabled = getenvDefault("FILE_BACKUP", "off") == "on"
	cfg.FileBackupPath = getenvDefault("FILE_BACKUP_PATH", "solar_data_backup.jsonl")

	locs, err := loadLocations()
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	return cfg, nil
}

// loadLocations parses SOLAR_LOCATIONS ("Name:lat:lng;Name:lat:lng") or
// falls back to the default roster.
func loadLocations() ([]solar.Location, error) {
	raw := os.Getenv("SOLAR_LOCATIONS")
	if raw == "" {
		return defaultRoster, nil
	}

	var locs []solar.Location
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid SOLAR_LOCATIONS entry %q: want Name:lat:lng", entry)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in SOLAR_LOCATIONS entry %q: %w", entry, err)
		}
		lng, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in SOLAR_LOCATIONS entry %q: %w", entry, err)
		}
		loc := solar.Location{Name: parts[0], Lat: lat, Lng: lng}
		if !loc.Valid() {
			return nil, fmt.Errorf("coordinates out of range in SOLAR_LOCATIONS entry %q", entry)
		}
		locs = append(locs, loc)
	}
	if len(locs) == 0 {
		return defaultRoster, nil
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
