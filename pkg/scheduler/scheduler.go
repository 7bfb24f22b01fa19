// Package scheduler runs the ingestion cycle on a cron schedule anchored to
// Europe/Oslo: a primary fetch at 13:00 that always runs fetch_all_prices,
// and three retries at 14:00, 15:00, and 16:00 that only fill in zones
// ENTSO-E published late.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/entsoeprices/dayahead/pkg/log"
	"github.com/entsoeprices/dayahead/pkg/telemetry"
	"github.com/robfig/cron/v3"
)

// FetchFunc runs one ingestion cycle and reports whether it failed, for
// job-duration/success telemetry.
type FetchFunc func(ctx context.Context) error

// job is one named cron entry: a cron spec in Europe/Oslo local time, a
// label used on every emitted metric, and the fetch operation it runs.
type job struct {
	name string
	cron string
	run  FetchFunc
}

// Scheduler wraps a cron.Cron configured with the primary fetch and its
// three conditional retries.
type Scheduler struct {
	cron      *cron.Cron
	telemetry telemetry.Sink
}

// New builds a Scheduler. primary runs at 13:00 and should perform the
// full today+tomorrow fetch (orchestrator.Orchestrator.FetchAllPrices);
// retry runs at 14:00/15:00/16:00 and should only refetch zones still
// missing tomorrow's data (orchestrator.Orchestrator.FetchTomorrowIfMissing).
// A nil telemetry sink is replaced with a Noop.
func New(primary, retry FetchFunc, sink telemetry.Sink) (*Scheduler, error) {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	loc, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		telemetry: sink,
	}

	jobs := []job{
		{name: "primary_fetch_13:00", cron: "0 13 * * *", run: primary},
		{name: "retry_1_14:00", cron: "0 14 * * *", run: retry},
		{name: "retry_2_15:00", cron: "0 15 * * *", run: retry},
		{name: "retry_3_16:00", cron: "0 16 * * *", run: retry},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.cron, func() { s.runJob(j.name, j.run) }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler from starting new jobs, then blocks until any
// in-flight job finishes or ctx is done, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		log.Ctx(ctx).WarnContext(ctx, "scheduler stop timed out waiting for in-flight job")
	}
}

// runJob invokes run and records success/failure and duration telemetry
// labeled by jobName, matching how each cron slot's outcome is measured.
func (s *Scheduler) runJob(jobName string, run FetchFunc) {
	ctx := context.Background()
	started := time.Now()

	if err := run(ctx); err != nil {
		s.telemetry.IncCounter("scheduler_job_failures_total", "job", jobName)
		log.Ctx(ctx).ErrorContext(ctx, "scheduled fetch failed", "job", jobName, "error", err)
	} else {
		s.telemetry.IncCounter("scheduler_job_success_total", "job", jobName)
		log.Ctx(ctx).InfoContext(ctx, "scheduled fetch completed", "job", jobName, slog.Duration("duration", time.Since(started)))
	}
	s.telemetry.ObserveHistogram("scheduler_job_duration_seconds", time.Since(started).Seconds(), "job", jobName)
}
