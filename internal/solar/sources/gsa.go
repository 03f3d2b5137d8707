package sources

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
)

// gsaSelectors maps metrics to the value elements of the Global Solar Atlas
// site-detail panel. The DOM is third-party and unstable; extraction failure
// is expected and degrades to the latitude estimate below.
var gsaSelectors = map[string]string{
	solar.MetricGHI:      `[data-layer-key="GHI"] .site-data-value`,
	solar.MetricDNI:      `[data-layer-key="DNI"] .site-data-value`,
	solar.MetricDHI:      `[data-layer-key="DIF"] .site-data-value`,
	solar.MetricPVOutput: `[data-layer-key="PVOUT"] .site-data-value`,
}

// GSASource drives a headless browser against the Global Solar Atlas map
// front end. The browser process is a lazily-created, process-wide singleton;
// every Fetch opens its own tab and closes it on all exit paths.
type GSASource struct {
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	initialized bool

	navTimeout time.Duration
	navRetries int
}

// NewGSASource creates the adapter without launching a browser; the first
// Fetch pays the startup cost.
func NewGSASource() *GSASource {
	return &GSASource{
		navTimeout: 30 * time.Second,
		navRetries: 1,
	}
}

func (g *GSASource) Name() solar.SourceName {
	return solar.SourceGSA
}

// allocator returns the shared browser allocator, creating it on first use.
// Chrome itself launches lazily on the first tab; launch failures surface as
// navigation errors in Fetch.
func (g *GSASource) allocator() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.initialized {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.DisableGPU,
			chromedp.Flag("blink-settings", "imagesEnabled=false"),
		)
		g.allocCtx, g.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		g.initialized = true
	}
	return g.allocCtx
}

// Close shuts the shared browser process down.
func (g *GSASource) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.allocCancel != nil {
		g.allocCancel()
		g.allocCancel = nil
	}
}

// Fetch navigates to the site-detail view for the coordinates and reads the
// irradiance panel. When structured extraction is not feasible the adapter
// falls back to a latitude/time estimate, which is a sanctioned
// approximation, not an error: only browser or navigation failure marks the
// reading unsuccessful.
func (g *GSASource) Fetch(ctx context.Context, loc solar.Location) solar.PartialReading {
	now := time.Now().UTC()

	// One tab per call; cancel closes it regardless of outcome.
	tabCtx, cancel := chromedp.NewContext(g.allocator())
	defer cancel()

	detailURL := fmt.Sprintf("https://globalsolaratlas.info/detail?c=%.4f,%.4f,11&s=%.4f,%.4f&m=site",
		loc.Lat, loc.Lng, loc.Lat, loc.Lng)

	var navErr error
	for attempt := 0; attempt <= g.navRetries; attempt++ {
		if ctx.Err() != nil {
			navErr = ctx.Err()
			break
		}
		navCtx, navCancel := context.WithTimeout(tabCtx, g.navTimeout)
		navErr = chromedp.Run(navCtx,
			chromedp.Navigate(detailURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
		navCancel()
		if navErr == nil {
			break
		}
		log.Printf("INFO: gsa navigation attempt %d failed for %s: %v", attempt+1, loc.Key(), navErr)
	}
	if navErr != nil {
		return g.failedReading(loc, now)
	}

	values, err := g.extract(tabCtx)
	if err != nil {
		log.Printf("INFO: gsa extraction degraded to estimate for %s: %v", loc.Key(), err)
		return g.estimatedReading(loc, now)
	}

	reading := solar.NewPartialReading(solar.SourceGSA, true, solar.QualityExcellent, now)
	for metric, v := range values {
		reading.Set(metric, v)
	}
	return reading
}

// extract reads every metric from the detail panel; any missing or
// unparsable value fails the whole extraction.
func (g *GSASource) extract(tabCtx context.Context) (map[string]float64, error) {
	extractCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
	defer cancel()

	out := make(map[string]float64, len(gsaSelectors))
	for metric, sel := range gsaSelectors {
		var text string
		if err := chromedp.Run(extractCtx,
			chromedp.Text(sel, &text, chromedp.ByQuery, chromedp.NodeVisible),
		); err != nil {
			return nil, fmt.Errorf("selector %q: %w", sel, err)
		}
		v, err := parseLeadingFloat(text)
		if err != nil {
			return nil, fmt.Errorf("selector %q value %q: %w", sel, text, err)
		}
		out[metric] = v
	}
	return out, nil
}

// estimatedReading is the sanctioned approximation when the page loads but
// the panel cannot be read.
func (g *GSASource) estimatedReading(loc solar.Location, ts time.Time) solar.PartialReading {
	reading := solar.NewPartialReading(solar.SourceGSA, true, solar.QualityEstimated, ts)
	g.fillEstimate(reading, loc)
	return reading
}

// failedReading marks browser/navigation failure while still carrying
// best-effort default values.
func (g *GSASource) failedReading(loc solar.Location, ts time.Time) solar.PartialReading {
	reading := solar.NewPartialReading(solar.SourceGSA, false, solar.QualityError, ts)
	g.fillEstimate(reading, loc)
	return reading
}

func (g *GSASource) fillEstimate(reading solar.PartialReading, loc solar.Location) {
	ghi := latitudeGHIEstimate(loc.Lat)
	reading.Set(solar.MetricGHI, ghi)
	reading.Set(solar.MetricDNI, ghi*0.9)
	reading.Set(solar.MetricDHI, ghi*0.35)
	reading.Set(solar.MetricPVOutput, ghi*0.78)
}

// latitudeGHIEstimate approximates daily GHI from |latitude| with a small
// random perturbation.
func latitudeGHIEstimate(lat float64) float64 {
	ghi := 5.8 - 0.035*math.Abs(lat) + (rand.Float64()-0.5)*0.6
	if ghi < 2.5 {
		ghi = 2.5
	}
	if ghi > 6.5 {
		ghi = 6.5
	}
	return ghi
}

// parseLeadingFloat extracts the first numeric token from a panel value like
// "4.95 kWh/m2 per day".
func parseLeadingFloat(s string) (float64, error) {
	fields := strings.Fields(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(fields[0], 64)
}
