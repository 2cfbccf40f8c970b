// Package notify delivers operator-facing notices (parse failures,
// broadcast summaries) to the configured operator chat.
//
// Notices are queued and sent by a single worker behind a rate limiter so a
// burst of failures cannot flood the operator chat. Enqueueing never blocks;
// when the queue is full the notice is dropped and counted in the log.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"cinebot/internal/transport"
)

const queueSize = 64

type Config struct {
	ChatID     int64
	RatePerMin int // 0 means 20
}

type Service struct {
	sender  transport.Sender
	target  transport.ChatTarget
	limiter *rate.Limiter
	log     zerolog.Logger

	queue chan string

	mu       sync.Mutex
	cancel   context.CancelFunc
	workerWG sync.WaitGroup
}

func New(cfg Config, sender transport.Sender, log zerolog.Logger) *Service {
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 20
	}
	return &Service{
		sender:  sender,
		target:  transport.ChatTarget{ChatID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 3),
		log:     log.With().Str("component", "notify").Logger(),
		queue:   make(chan string, queueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		s.worker(runCtx)
	}()
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.workerWG.Wait()
}

// Notify enqueues a plain-text notice. Safe to call from any goroutine;
// never blocks.
func (s *Service) Notify(text string) {
	if s.target.ChatID == 0 {
		return
	}
	select {
	case s.queue <- text:
	default:
		s.log.Warn().Msg("notice queue full; dropping")
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, err := s.sender.Send(sctx, s.target, transport.Payload{Text: text}, &transport.SendOptions{})
			cancel()
			if err != nil {
				s.log.Warn().Err(err).Msg("operator notice failed")
			}
		}
	}
}
