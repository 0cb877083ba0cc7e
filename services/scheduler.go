// services/scheduler.go
package services

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler owns the three background jobs: block ingest, the hourly
// settlement sweep, and the daily cost accrual. Each job is single-flight
// with respect to itself; the jobs interleave freely and rely on row
// locking, not on inter-job exclusion.
type Scheduler struct {
	sched gocron.Scheduler
}

func StartScheduler(ingest *BlockIngestService, subscriptions *SubscriptionService, ingestInterval time.Duration) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	jobs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{"block-ingest", ingestInterval, ingest.Tick},
		{"settlement-sweep", time.Hour, subscriptions.RunSettlementSweep},
		{"cost-accrual", 24 * time.Hour, subscriptions.RunDailyCostAccrual},
	}
	for _, j := range jobs {
		if _, err := sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.task),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", j.name, err)
		}
		log.Printf("[Scheduler] %s every %v", j.name, j.interval)
	}

	sched.Start()
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Stop() {
	if err := s.sched.Shutdown(); err != nil {
		log.Printf("[Scheduler] shutdown: %v", err)
	}
}
