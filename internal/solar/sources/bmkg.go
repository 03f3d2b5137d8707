package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
)

// bmkgRegionCodes maps rounded coordinates to BMKG administrative-region
// (adm4) codes. A location with no entry is a configuration gap, not a
// runtime error: the adapter degrades to the latitude/time heuristic.
var bmkgRegionCodes = map[string]string{
	"-6.4025,106.7942": "32.76.01.1002", // Depok
	"-6.2088,106.8456": "31.71.01.1001", // Jakarta
	"-6.9175,107.6191": "32.73.01.1001", // Bandung
	"-7.2575,112.7521": "35.78.01.1001", // Surabaya
	"-7.7956,110.3695": "34.71.01.1001", // Yogyakarta
}

// BMKGSource queries the Indonesian meteorological agency forecast API.
type BMKGSource struct {
	client  *resty.Client
	baseURL string
	circuit *gobreaker.CircuitBreaker
	codes   map[string]string
}

// NewBMKGSource creates the BMKG adapter with its own resty client.
func NewBMKGSource() *BMKGSource {
	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &BMKGSource{
		client:  client,
		baseURL: "https://api.bmkg.go.id/publik/prakiraan-cuaca",
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "bmkg",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		codes: bmkgRegionCodes,
	}
}

func (b *BMKGSource) Name() solar.SourceName {
	return solar.SourceBMKG
}

// bmkgResponse is the subset of the forecast payload we consume.
type bmkgResponse struct {
	Data []struct {
		Cuaca [][]struct {
			Temperature *float64 `json:"t"`
			Humidity    *float64 `json:"hu"`
			CloudCover  *float64 `json:"tcc"`
		} `json:"cuaca"`
	} `json:"data"`
}

// Fetch resolves the region code for the location and queries the forecast
// API. Without a registered code the reading is a degraded-but-successful
// heuristic; only transport/parse failure marks it unsuccessful.
func (b *BMKGSource) Fetch(ctx context.Context, loc solar.Location) solar.PartialReading {
	now := time.Now()

	code, ok := b.codes[loc.Key()]
	if !ok {
		log.Printf("INFO: no bmkg region code registered for %s, using heuristic", loc.Key())
		return b.heuristicReading(loc, now, true, solar.QualityEstimated)
	}

	result, err := b.circuit.Execute(func() (interface{}, error) {
		resp, err := b.client.R().
			SetContext(ctx).
			SetQueryParam("adm4", code).
			Get(b.baseURL)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		log.Printf("ERROR: bmkg fetch failed for %s: %v", loc.Key(), err)
		return b.heuristicReading(loc, now, false, solar.QualityError)
	}

	var payload bmkgResponse
	if err := json.Unmarshal(result.([]byte), &payload); err != nil {
		log.Printf("ERROR: bmkg response decode failed for %s: %v", loc.Key(), err)
		return b.heuristicReading(loc, now, false, solar.QualityError)
	}

	entry, ok := firstForecastEntry(payload)
	if !ok {
		log.Printf("ERROR: bmkg response carried no forecast entries for %s", loc.Key())
		return b.heuristicReading(loc, now, false, solar.QualityError)
	}

	reading := solar.NewPartialReading(solar.SourceBMKG, true, solar.QualityGood, now.UTC())
	if entry.Temperature != nil {
		reading.Set(solar.MetricTemperature, *entry.Temperature)
	}
	if entry.Humidity != nil {
		reading.Set(solar.MetricHumidity, *entry.Humidity)
	}

	// BMKG reports no irradiance; derive GHI from the clear-sky value
	// attenuated by cloud cover.
	clearness := 1.0
	if entry.CloudCover != nil {
		clearness = 1 - 0.6*math.Min(*entry.CloudCover, 100)/100
	}
	reading.Set(solar.MetricGHI, bmkgClearSkyGHI(loc.Lat, now.Hour())*clearness)

	return reading
}

type bmkgEntry = struct {
	Temperature *float64 `json:"t"`
	Humidity    *float64 `json:"hu"`
	CloudCover  *float64 `json:"tcc"`
}

func firstForecastEntry(payload bmkgResponse) (bmkgEntry, bool) {
	for _, d := range payload.Data {
		for _, day := range d.Cuaca {
			if len(day) > 0 {
				return day[0], true
			}
		}
	}
	return bmkgEntry{}, false
}

// heuristicReading is the latitude/time fallback used both for unregistered
// locations (successful, estimated) and transport failures (unsuccessful).
func (b *BMKGSource) heuristicReading(loc solar.Location, now time.Time, success bool, quality solar.Quality) solar.PartialReading {
	shape := math.Max(0, math.Sin(float64(now.Hour()-6)/12*math.Pi))

	reading := solar.NewPartialReading(solar.SourceBMKG, success, quality, now.UTC())
	reading.Set(solar.MetricGHI, bmkgClearSkyGHI(loc.Lat, now.Hour())*0.85)
	reading.Set(solar.MetricTemperature, 28-0.25*math.Abs(loc.Lat)+4*shape)
	reading.Set(solar.MetricHumidity, 78-12*shape)
	return reading
}

func bmkgClearSkyGHI(lat float64, hour int) float64 {
	ghi := 5.6 - 0.03*math.Abs(lat)
	if ghi < 2.0 {
		ghi = 2.0
	}
	return ghi * math.Max(0, math.Sin(float64(hour-6)/12*math.Pi))
}
