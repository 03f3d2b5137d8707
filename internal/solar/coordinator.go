package solar

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Coordinator wraps the source adapters with a connectivity check and an
// offline fallback. Its output is always complete: one PartialReading per
// registered source, regardless of live/offline status.
type Coordinator struct {
	sources      []Source
	probe        ConnectivityProbe
	probeTimeout time.Duration
}

// NewCoordinator creates a Coordinator over the given probe and sources.
func NewCoordinator(probe ConnectivityProbe, probeTimeout time.Duration, sources ...Source) *Coordinator {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Coordinator{
		sources:      sources,
		probe:        probe,
		probeTimeout: probeTimeout,
	}
}

// Acquire fetches readings for one location. Connectivity is re-evaluated on
// every call; when the process is unreachable the offline synthesizer covers
// all sources at once. Adapter failure is data (success=false), not a
// pipeline failure, so there is no retry at this layer.
func (c *Coordinator) Acquire(ctx context.Context, loc Location) (map[SourceName]PartialReading, bool) {
	if !c.Online(ctx) {
		log.Printf("INFO: no connectivity, synthesizing offline readings for %s", loc.Key())
		return SynthesizeOffline(loc, time.Now()), false
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings = make(map[SourceName]PartialReading, len(c.sources))
	)

	for _, src := range c.sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()

			r := src.Fetch(ctx, loc)
			mu.Lock()
			readings[src.Name()] = r
			mu.Unlock()
		}()
	}
	wg.Wait()

	return readings, true
}

// Online runs the connectivity probe with its own bounded timeout.
func (c *Coordinator) Online(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return c.probe.Online(probeCtx)
}

// HTTPProbe checks reachability against a lightweight external endpoint.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// NewHTTPProbe returns a probe against a well-known no-content endpoint.
func NewHTTPProbe(client *http.Client) *HTTPProbe {
	return &HTTPProbe{
		URL:    "https://clients3.google.com/generate_204",
		Client: client,
	}
}

// Online reports whether the probe endpoint answered at all. Any HTTP
// response counts: the question is reachability, not health of the target.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
