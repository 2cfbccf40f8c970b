// Package scheduler runs named cron jobs (daily digest, quota sweep).
package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const defaultJobTimeout = time.Minute

type Service struct {
	c   *cron.Cron
	log zerolog.Logger
}

func New(timezone string, log zerolog.Logger) (*Service, error) {
	loc := time.Local
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, err
		}
		loc = l
	}
	return &Service{
		c:   cron.New(cron.WithLocation(loc)),
		log: log.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Add registers a job under a cron spec (standard 5-field or @every form).
// Jobs run with a bounded timeout and a panic guard; a failing job logs and
// waits for its next slot.
func (s *Service) Add(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	_, err := s.c.AddFunc(spec, func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Str("job", name).Any("panic", r).Str("stack", string(debug.Stack())).Msg("job panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := job(ctx); err != nil {
			s.log.Warn().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	})
	return err
}

func (s *Service) Start() {
	s.c.Start()
	s.log.Info().Int("jobs", len(s.c.Entries())).Msg("scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Service) Stop() {
	<-s.c.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}
