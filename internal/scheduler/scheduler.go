// Package scheduler publishes configured periodic events into the pipeline.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/pkg/item"
)

// Publisher accepts events from the scheduler.
type Publisher interface {
	Publish(ctx context.Context, source string, ev item.Event) bool
}

type Scheduler struct {
	c         *cron.Cron
	parser    cron.Parser
	publisher Publisher
	jobs      []config.CronJob
	ctx       context.Context
}

func New(publisher Publisher, jobs []config.CronJob) *Scheduler {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		c:         cron.New(cron.WithParser(parser), cron.WithLocation(time.Local)),
		parser:    parser,
		publisher: publisher,
		jobs:      jobs,
		ctx:       context.Background(),
	}
}

func (s *Scheduler) Name() string {
	return "cron"
}

// Start registers all jobs and starts the cron loop. Jobs flagged "now" are
// also fired once right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	for _, job := range s.jobs {
		if _, err := s.c.AddFunc(job.Schedule, s.fire(job)); err != nil {
			return fmt.Errorf("cron job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
		}
		logger.Info("Scheduled job", slog.String("job", job.Name), slog.String("schedule", job.Schedule))
	}
	s.c.Start()
	for _, job := range s.jobs {
		if job.Now {
			s.fire(job)()
		}
	}
	return nil
}

func (s *Scheduler) Stop() error {
	<-s.c.Stop().Done()
	return nil
}

func (s *Scheduler) IsReady() bool {
	return true
}

// Validate checks job schedules without starting anything.
func (s *Scheduler) Validate() error {
	for _, job := range s.jobs {
		if _, err := s.parser.Parse(job.Schedule); err != nil {
			return fmt.Errorf("cron job %s: %w", job.Name, err)
		}
	}
	return nil
}

func (s *Scheduler) fire(job config.CronJob) func() {
	return func() {
		logger.Debug("Running job", slog.String("job", job.Name), slog.String("topic", job.Topic))
		s.publisher.Publish(s.ctx, s.Name(), item.Event{Topic: job.Topic, Payload: []byte(job.Payload)})
	}
}
