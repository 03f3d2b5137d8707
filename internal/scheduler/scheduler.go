package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/gritasolar/solar-data-aggregation/internal/solar"
)

// Scheduler triggers acquisitions for the configured roster: a cron-aligned
// recurring run plus a one-shot warm-up shortly after process start. Roster
// entries are visited sequentially with a short delay in between so the
// external sources never see the whole roster at once.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *solar.Service
	locations []solar.Location

	cronExpr    string
	interDelay  time.Duration
	warmupDelay time.Duration

	stopWarmup chan struct{}
}

// New creates a Scheduler.
func New(locations []solar.Location, cronExpr string, interDelay, warmupDelay time.Duration, service *solar.Service) *Scheduler {
	return &Scheduler{
		scheduler:   gocron.NewScheduler(time.UTC),
		service:     service,
		locations:   locations,
		cronExpr:    cronExpr,
		interDelay:  interDelay,
		warmupDelay: warmupDelay,
		stopWarmup:  make(chan struct{}),
	}
}

// Start registers the cron job and kicks off the warm-up run.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		log.Println("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	if _, err := s.scheduler.Cron(s.cronExpr).Do(s.runRoster); err != nil {
		return err
	}
	s.scheduler.StartAsync()

	go func() {
		select {
		case <-time.After(s.warmupDelay):
			log.Println("scheduler: running warm-up acquisition")
			s.runRoster()
		case <-s.stopWarmup:
		}
	}()

	return nil
}

// runRoster walks the roster once. A persistence or source failure for one
// location never aborts the remaining entries.
func (s *Scheduler) runRoster() {
	cycleID := uuid.NewString()
	log.Printf("scheduler: starting acquisition cycle %s for %d locations", cycleID, len(s.locations))

	for i, loc := range s.locations {
		if i > 0 && s.interDelay > 0 {
			time.Sleep(s.interDelay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		reading, cached, err := s.service.GetOrFetch(ctx, loc)
		cancel()

		if err != nil {
			log.Printf("scheduler: cycle %s acquisition failed for %s: %v", cycleID, loc.Key(), err)
			continue
		}
		log.Printf("scheduler: cycle %s %s sources_scraped=%d live=%t cached=%t",
			cycleID, loc.Key(), reading.SourcesScraped, reading.IsLive, cached)
	}

	log.Printf("scheduler: completed acquisition cycle %s", cycleID)
}

// Stop stops the scheduler and cancels a pending warm-up run.
func (s *Scheduler) Stop() {
	close(s.stopWarmup)
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
