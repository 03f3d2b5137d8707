package solar

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// SynthesizeOffline produces deterministic, plausible readings for all three
// sources when no network is reachable. Values are a pure function of
// (rounded location, hour bucket): repeated calls within the same hour yield
// identical series instead of jittering on every request.
func SynthesizeOffline(loc Location, now time.Time) map[SourceName]PartialReading {
	rng := rand.New(rand.NewSource(offlineSeed(loc, now)))
	shape := solarShape(now.Hour())

	// Clear-sky daily GHI falls off with distance from the equator.
	baseGHI := clearSkyGHI(loc.Lat)
	perturb := 0.9 + 0.2*rng.Float64()

	out := make(map[SourceName]PartialReading, 3)

	gsa := NewPartialReading(SourceGSA, true, QualityOfflineEstimated, now)
	ghi := baseGHI * shape * perturb
	gsa.Set(MetricGHI, ghi)
	gsa.Set(MetricDNI, ghi*0.85)
	gsa.Set(MetricDHI, ghi*0.35)
	gsa.Set(MetricPVOutput, ghi*0.78)
	out[SourceGSA] = gsa

	pvgis := NewPartialReading(SourcePVGIS, true, QualityOfflineEstimated, now)
	pvGHI := baseGHI * shape * (0.9 + 0.2*rng.Float64())
	pvgis.Set(MetricGHI, pvGHI)
	pvgis.Set(MetricDNI, pvGHI*0.82)
	pvgis.Set(MetricPVOutput, pvGHI*0.75)
	out[SourcePVGIS] = pvgis

	bmkg := NewPartialReading(SourceBMKG, true, QualityOfflineEstimated, now)
	bmkg.Set(MetricGHI, baseGHI*shape*(0.9+0.2*rng.Float64()))
	bmkg.Set(MetricTemperature, 28-0.25*math.Abs(loc.Lat)+4*shape+rng.Float64())
	bmkg.Set(MetricHumidity, 78-12*shape+2*rng.Float64())
	out[SourceBMKG] = bmkg

	return out
}

// solarShape models the time-of-day irradiance envelope: zero outside the
// 06:00-18:00 window, peaking at solar noon.
func solarShape(hour int) float64 {
	return math.Max(0, math.Sin(float64(hour-6)/12*math.Pi))
}

// clearSkyGHI is a coarse latitude-dependent clear-sky daily GHI in
// kWh/m2/day, clamped to a plausible band.
func clearSkyGHI(lat float64) float64 {
	ghi := 5.8 - 0.035*math.Abs(lat)
	if ghi < 2.0 {
		ghi = 2.0
	}
	return ghi
}

// offlineSeed derives the deterministic seed from the rounded coordinates and
// the hour bucket.
func offlineSeed(loc Location, now time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(loc.Key()))
	bucket := now.Truncate(time.Hour).Unix()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(bucket >> (8 * i))
	}
	h.Write(buf[:])
	return int64(h.Sum64())
}
