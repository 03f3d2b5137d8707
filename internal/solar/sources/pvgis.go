package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
)

// Fixed PV system parameters sent to PVcalc: a 1 kWp reference system with
// 14% losses and a free-standing fixed mount.
const (
	pvgisPeakPowerKWP = 1.0
	pvgisSystemLoss   = 14.0
)

// PVGISSource queries the European Commission PVGIS PVcalc API and reduces
// the returned monthly series to mean daily values.
type PVGISSource struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewPVGISSource creates the PVGIS adapter over a shared HTTP client.
func NewPVGISSource(client *http.Client) *PVGISSource {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pvgis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &PVGISSource{
		baseURL: "https://re.jrc.ec.europa.eu/api/v5_2/PVcalc",
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (p *PVGISSource) Name() solar.SourceName {
	return solar.SourcePVGIS
}

// pvgisResponse is the subset of the PVcalc payload we consume. Decoding is
// strict enough that a malformed upstream body fails into the error path
// instead of propagating zeros.
type pvgisResponse struct {
	Outputs struct {
		Monthly struct {
			Fixed []struct {
				Month int      `json:"month"`
				ED    *float64 `json:"E_d"`    // daily PV energy, kWh/kWp
				HID   *float64 `json:"H(i)_d"` // daily in-plane irradiation, kWh/m2
			} `json:"fixed"`
		} `json:"monthly"`
	} `json:"outputs"`
}

// Fetch calls PVcalc and averages the twelve monthly daily values. Transport
// or parse failure yields a failed reading carrying a location-independent
// fallback estimate so downstream never sees nulls from this source.
func (p *PVGISSource) Fetch(ctx context.Context, loc solar.Location) solar.PartialReading {
	now := time.Now().UTC()

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", loc.Lat))
		values.Set("lon", fmt.Sprintf("%f", loc.Lng))
		values.Set("peakpower", fmt.Sprintf("%g", pvgisPeakPowerKWP))
		values.Set("loss", fmt.Sprintf("%g", pvgisSystemLoss))
		values.Set("outputformat", "json")

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	})
	if err != nil {
		log.Printf("ERROR: pvgis fetch failed for %s: %v", loc.Key(), err)
		return p.failedReading(now)
	}
	defer resp.Body.Close()

	var payload pvgisResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Printf("ERROR: pvgis response decode failed for %s: %v", loc.Key(), err)
		return p.failedReading(now)
	}

	months := payload.Outputs.Monthly.Fixed
	if len(months) == 0 {
		log.Printf("ERROR: pvgis response carried no monthly series for %s", loc.Key())
		return p.failedReading(now)
	}

	var sumED, sumHID float64
	var nED, nHID int
	for _, m := range months {
		if m.ED != nil {
			sumED += *m.ED
			nED++
		}
		if m.HID != nil {
			sumHID += *m.HID
			nHID++
		}
	}
	if nED == 0 || nHID == 0 {
		return p.failedReading(now)
	}

	meanPV := sumED / float64(nED)
	meanGHI := sumHID / float64(nHID)

	reading := solar.NewPartialReading(solar.SourcePVGIS, true, solar.QualityExcellent, now)
	reading.Set(solar.MetricGHI, meanGHI)
	// PVcalc reports in-plane irradiation only; direct-normal is approximated.
	reading.Set(solar.MetricDNI, meanGHI*0.85)
	reading.Set(solar.MetricPVOutput, meanPV)
	return reading
}

// failedReading tags the reading as a transport-level failure while still
// carrying constant-ish default values.
func (p *PVGISSource) failedReading(ts time.Time) solar.PartialReading {
	reading := solar.NewPartialReading(solar.SourcePVGIS, false, solar.QualityError, ts)
	reading.Set(solar.MetricGHI, 4.8)
	reading.Set(solar.MetricDNI, 4.1)
	reading.Set(solar.MetricPVOutput, 3.8)
	return reading
}
