package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kelvins/geocoder"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
	"github.com/gritasolar/solar-data-aggregation/internal/store"
)

var validate = validator.New()

// Handlers carries the dependencies of the HTTP layer.
type Handlers struct {
	service        *solar.Service
	store          solar.Store
	geocodeEnabled bool
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. geocoderAPIKey
// may be empty; reverse geocoding of ad-hoc coordinates is then skipped.
func RegisterRoutes(app *fiber.App, service *solar.Service, st solar.Store, geocoderAPIKey string) {
	h := &Handlers{
		service:        service,
		store:          st,
		geocodeEnabled: geocoderAPIKey != "",
	}
	if h.geocodeEnabled {
		geocoder.ApiKey = geocoderAPIKey
	}

	app.Get("/health", h.health)
	app.Get("/database/stats", h.databaseStats)
	app.Get("/sources/:source", h.sourceSeries)
	app.Get("/scraping-status", h.scrapingStatus)
	app.Get("/readings/latest", h.latestReading)
	app.Post("/clear-cache", h.clearCache)

	// Manual scrape, with the legacy aliases the dashboard still calls.
	for _, path := range []string{"/scrape/manual", "/force-scrape", "/scrape-location"} {
		app.Post(path, h.manualScrape)
	}
}

func (h *Handlers) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	stats, err := h.store.Stats(ctx)
	if err != nil {
		log.Printf("ERROR: health stats query failed: %v", err)
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":                status,
		"internet":              h.service.Online(ctx),
		"last_successful_scrape": h.service.LastSuccessfulScrape(),
		"total_records":         stats.TotalRecords,
	})
}

func (h *Handlers) databaseStats(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to query database stats")
	}
	return c.JSON(stats)
}

func (h *Handlers) sourceSeries(c *fiber.Ctx) error {
	name := c.Params("source")
	if !solar.ValidSource(name) {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown source %q", name))
	}

	limit := c.QueryInt("limit", 48)
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := h.store.SourceSeries(c.Context(), solar.SourceName(name), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to query source series")
	}

	return c.JSON(solar.BuildSourceSeries(solar.SourceName(name), rows))
}

// scrapeCoordinates is the nested coordinates object of a manual-scrape
// request.
type scrapeCoordinates struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

// manualScrapeRequest accepts either a nested coordinates object or flat
// lat/lng fields.
type manualScrapeRequest struct {
	Coordinates  *scrapeCoordinates `json:"coordinates"`
	Lat          *float64           `json:"lat"`
	Lng          *float64           `json:"lng"`
	LocationName string             `json:"location_name"`
}

func (r *manualScrapeRequest) coords() (scrapeCoordinates, error) {
	if r.Coordinates != nil {
		if err := validate.Struct(r.Coordinates); err != nil {
			return scrapeCoordinates{}, errors.New("coordinates must include lat and lng")
		}
		return *r.Coordinates, nil
	}
	flat := scrapeCoordinates{Lat: r.Lat, Lng: r.Lng}
	if err := validate.Struct(flat); err != nil {
		return scrapeCoordinates{}, errors.New("lat and lng are required")
	}
	return flat, nil
}

func (h *Handlers) manualScrape(c *fiber.Ctx) error {
	var req manualScrapeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	coords, err := req.coords()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	loc := solar.Location{Name: req.LocationName, Lat: *coords.Lat, Lng: *coords.Lng}
	if !loc.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "coordinates out of range")
	}
	if loc.Name == "" {
		loc.Name = h.resolveName(loc)
	}

	ctx, cancel := context.WithTimeout(c.Context(), 90*time.Second)
	defer cancel()

	reading, cached, err := h.service.GetOrFetch(ctx, loc)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "acquisition failed")
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"request_id": uuid.NewString(),
		"cached":     cached,
		"data":       reading,
		"blended":    solar.Blend(reading),
	})
}

// resolveName reverse geocodes ad-hoc coordinates when a geocoder key is
// configured, otherwise labels the point by its rounded coordinates.
func (h *Handlers) resolveName(loc solar.Location) string {
	if h.geocodeEnabled {
		addresses, err := geocoder.GeocodingReverse(geocoder.Location{
			Latitude:  loc.Lat,
			Longitude: loc.Lng,
		})
		if err == nil && len(addresses) > 0 {
			if city := addresses[0].City; city != "" {
				return city
			}
			return addresses[0].FormatAddress()
		}
		log.Printf("INFO: reverse geocoding failed for %s: %v", loc.Key(), err)
	}
	return fmt.Sprintf("Ad-hoc (%s)", loc.Key())
}

func (h *Handlers) scrapingStatus(c *fiber.Ctx) error {
	sources := make([]string, 0, 3)
	for _, s := range solar.AllSources() {
		sources = append(sources, string(s))
	}
	return c.JSON(fiber.Map{
		"active_scraping_tasks": h.service.ActiveTasks(),
		"cached_locations":      h.service.CachedLocations(),
		"sources":               sources,
	})
}

type clearCacheRequest struct {
	Location string `json:"location"`
}

func (h *Handlers) clearCache(c *fiber.Ctx) error {
	var req clearCacheRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	key := ""
	if req.Location != "" {
		k, err := parseCoordinateKey(req.Location)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		key = k
	}

	cleared := h.service.ClearCache(key)
	return c.JSON(fiber.Map{
		"success": true,
		"cleared": cleared,
	})
}

// parseCoordinateKey normalizes a "lat,lng" string to the rounded cache key.
func parseCoordinateKey(s string) (string, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return "", errors.New("location must be \"lat,lng\"")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return "", errors.New("invalid latitude in location")
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return "", errors.New("invalid longitude in location")
	}
	return solar.Location{Lat: lat, Lng: lng}.Key(), nil
}

func (h *Handlers) latestReading(c *fiber.Ctx) error {
	latStr := c.Query("lat")
	lngStr := c.Query("lng")
	if latStr == "" || lngStr == "" {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lng query parameters are required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid lat")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid lng")
	}

	reading, err := h.store.LatestNear(c.Context(), lat, lng)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no readings near requested coordinates")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to query readings")
	}

	return c.JSON(fiber.Map{
		"data":    reading,
		"blended": solar.Blend(reading),
	})
}
