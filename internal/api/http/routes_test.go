package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
	"github.com/gritasolar/solar-data-aggregation/internal/store"
	"github.com/gritasolar/solar-data-aggregation/pkg/metrics"
)

type offlineProbe struct{}

func (offlineProbe) Online(_ context.Context) bool { return false }

// newTestApp wires the routes over an in-memory store and an offline
// coordinator, so acquisitions synthesize data without touching the network.
func newTestApp() (*fiber.App, *store.MemoryStore) {
	app := fiber.New()

	memStore := store.NewMemoryStore(0)
	coord := solar.NewCoordinator(offlineProbe{}, time.Second)
	svc := solar.NewService(coord, memStore, time.Hour, metrics.NewCollector("test"))
	RegisterRoutes(app, svc, memStore, "")

	return app, memStore
}

// TestManualScrapeValidation verifies that requests without coordinates are
// rejected before any acquisition runs.
func TestManualScrapeValidation(t *testing.T) {
	app, memStore := newTestApp()

	// Missing lng should return 400.
	req := httptest.NewRequest(http.MethodPost, "/scrape/manual", strings.NewReader(`{"lat": -6.4}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Out-of-range latitude should also return 400.
	req = httptest.NewRequest(http.MethodPost, "/scrape/manual", strings.NewReader(`{"lat": 95.0, "lng": 106.8}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	stats, _ := memStore.Stats(context.Background())
	if stats.TotalRecords != 0 {
		t.Fatalf("rejected requests must not persist rows, got %d", stats.TotalRecords)
	}
}

// TestManualScrapeOfflineFlow runs a full acquisition through the offline
// synthesizer and verifies persistence and the cache flag.
func TestManualScrapeOfflineFlow(t *testing.T) {
	app, memStore := newTestApp()

	body := `{"coordinates": {"lat": -6.4025, "lng": 106.7942}, "location_name": "Depok"}`

	req := httptest.NewRequest(http.MethodPost, "/scrape/manual", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var first struct {
		Cached bool `json:"cached"`
		Data   struct {
			SourcesScraped int  `json:"sources_scraped"`
			IsLive         bool `json:"is_live"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if first.Cached {
		t.Fatal("first acquisition should not be a cache hit")
	}
	if first.Data.IsLive {
		t.Fatal("offline acquisition must report is_live=false")
	}
	if first.Data.SourcesScraped != 3 {
		t.Fatalf("expected 3 synthesized sources, got %d", first.Data.SourcesScraped)
	}

	stats, _ := memStore.Stats(context.Background())
	if stats.TotalRecords != 1 {
		t.Fatalf("expected 1 persisted row, got %d", stats.TotalRecords)
	}

	// Same coordinates again: served from cache, no new row.
	req = httptest.NewRequest(http.MethodPost, "/scrape/manual", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var second struct {
		Cached bool `json:"cached"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&second); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !second.Cached {
		t.Fatal("second acquisition should be a cache hit")
	}
	stats, _ = memStore.Stats(context.Background())
	if stats.TotalRecords != 1 {
		t.Fatalf("cache hit must not persist a new row, got %d", stats.TotalRecords)
	}
}

// TestSourceSeriesValidation verifies rejection of unknown source names.
func TestSourceSeriesValidation(t *testing.T) {
	app, _ := newTestApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sources/noaa", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/sources/pvgis", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

// TestLatestReadingNotFound verifies the 404 on an empty neighbourhood and
// the 400 on malformed coordinates.
func TestLatestReadingNotFound(t *testing.T) {
	app, _ := newTestApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/readings/latest?lat=-6.4&lng=106.8", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/readings/latest?lat=abc&lng=106.8", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

// TestScrapingStatusAndClearCache verifies the introspection endpoints.
func TestScrapingStatusAndClearCache(t *testing.T) {
	app, _ := newTestApp()

	// Seed the cache with one acquisition via the flat request shape.
	body := `{"lat": -6.4025, "lng": 106.7942}`
	req := httptest.NewRequest(http.MethodPost, "/force-scrape", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if _, err := app.Test(req, 10000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/scraping-status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var status struct {
		ActiveTasks     int      `json:"active_scraping_tasks"`
		CachedLocations []string `json:"cached_locations"`
		Sources         []string `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(status.CachedLocations) != 1 || status.CachedLocations[0] != "-6.4025,106.7942" {
		t.Fatalf("unexpected cached locations: %v", status.CachedLocations)
	}
	if len(status.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %v", status.Sources)
	}

	req = httptest.NewRequest(http.MethodPost, "/clear-cache", strings.NewReader(`{"location": "-6.4025, 106.7942"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var cleared struct {
		Cleared int `json:"cleared"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cleared); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if cleared.Cleared != 1 {
		t.Fatalf("expected 1 cleared entry, got %d", cleared.Cleared)
	}
}
