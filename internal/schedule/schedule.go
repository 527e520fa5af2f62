// Package schedule drives recurring collection runs from a cron spec.
package schedule

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a job repeatedly on a cron schedule.
type Scheduler struct {
	cron  *cron.Cron
	entry cron.EntryID
}

// New schedules job under spec. The context is passed to every run, and
// ticks that arrive while a previous run is still going are skipped.
func New(ctx context.Context, spec string, job Job) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))
	entry, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := job(ctx); err != nil {
			log.Printf("scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return &Scheduler{cron: c, entry: entry}, nil
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Next returns the time of the upcoming run. Only valid after Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Run schedules job under spec and blocks until SIGINT or SIGTERM. The
// signal cancels the job's context, and Run waits for an in-flight run
// before returning.
func Run(spec string, job Job) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := New(ctx, spec, job)
	if err != nil {
		return err
	}

	s.Start()
	log.Printf("scheduler started (%s), next run %s", spec, s.Next().Format("2006-01-02 15:04"))

	<-ctx.Done()
	log.Printf("stopping scheduler")
	s.Stop()
	return nil
}
