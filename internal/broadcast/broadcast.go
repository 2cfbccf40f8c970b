// Package broadcast fans payloads out to a large recipient set in waves.
//
// Recipients are partitioned into sequential waves of at most WaveSize. All
// (recipient, payload) attempts inside a wave run concurrently and
// independently; after a wave settles the dispatcher sleeps WaveDelay before
// the next one. That pause is the sole flood-limit compliance mechanism
// against the chat platform. No delay is applied after the final wave: the
// pause exists to pace the next wave and there is none.
//
// Failures are scoped to the single attempt. A failure classified as
// permanent (transport.ErrRecipientGone) prunes the recipient from the
// directory; everything else is counted and dropped — no retry within a run.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cinebot/internal/transport"
)

const (
	defaultWaveSize    = 25
	defaultWaveDelay   = time.Second
	defaultSendTimeout = 10 * time.Second
)

// Directory is the subscriber-directory collaborator. Remove is called at
// most once per recipient per run, when a delivery attempt reports the
// recipient permanently unreachable.
type Directory interface {
	Remove(ctx context.Context, chatID int64) error
}

// ProtectionPolicy decides whether content sent to a recipient is marked
// non-forwardable. A nil policy protects everyone.
type ProtectionPolicy interface {
	Protected(subject int64) bool
}

type Config struct {
	WaveSize    int
	WaveDelay   time.Duration
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.WaveSize <= 0 {
		c.WaveSize = defaultWaveSize
	}
	if c.WaveDelay <= 0 {
		c.WaveDelay = defaultWaveDelay
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

// Report aggregates one dispatch run. Delivered and Failed count
// (recipient, payload) attempts; Pruned counts recipients.
type Report struct {
	Delivered int
	Failed    int
	Pruned    int
	Waves     int
}

type Dispatcher struct {
	cfg        Config
	sender     transport.Sender
	dir        Directory
	protection ProtectionPolicy
	log        zerolog.Logger
}

func New(cfg Config, sender transport.Sender, dir Directory, protection ProtectionPolicy, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg.withDefaults(),
		sender:     sender,
		dir:        dir,
		protection: protection,
		log:        log.With().Str("component", "broadcast").Logger(),
	}
}

// Dispatch delivers every payload to every recipient. It only guarantees
// that wave N settles before wave N+1 starts; ordering within a wave is
// unspecified. Cancelling ctx stops the run at the next wave boundary;
// attempts already in flight finish.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []int64, payloads []transport.Payload, opt transport.SendOptions) Report {
	start := time.Now()
	var delivered, failed, pruned atomic.Int64

	var pruneMu sync.Mutex
	prunedSet := make(map[int64]bool)

	waves := 0
	for waveStart := 0; waveStart < len(recipients); waveStart += d.cfg.WaveSize {
		if waves > 0 {
			if !d.pause(ctx) {
				d.log.Warn().Int("waves_done", waves).Msg("dispatch cancelled between waves")
				break
			}
		}
		if ctx.Err() != nil {
			d.log.Warn().Int("waves_done", waves).Msg("dispatch cancelled between waves")
			break
		}

		waveEnd := waveStart + d.cfg.WaveSize
		if waveEnd > len(recipients) {
			waveEnd = len(recipients)
		}
		wave := recipients[waveStart:waveEnd]
		waves++
		waveDelivered, waveFailed := delivered.Load(), failed.Load()

		var wg sync.WaitGroup
		for _, chatID := range wave {
			for _, p := range payloads {
				wg.Add(1)
				go func(chatID int64, p transport.Payload) {
					defer wg.Done()
					err := d.attempt(ctx, chatID, p, opt)
					switch {
					case err == nil:
						delivered.Add(1)
					case isPermanent(err):
						failed.Add(1)
						pruneMu.Lock()
						first := !prunedSet[chatID]
						prunedSet[chatID] = true
						pruneMu.Unlock()
						if first {
							if rerr := d.dir.Remove(ctx, chatID); rerr != nil {
								d.log.Warn().Err(rerr).Int64("chat_id", chatID).Msg("prune failed")
							} else {
								pruned.Add(1)
							}
						}
					default:
						failed.Add(1)
						d.log.Debug().Err(err).Int64("chat_id", chatID).Msg("delivery failed")
					}
				}(chatID, p)
			}
		}
		wg.Wait()
		d.log.Debug().
			Int("wave", waves).
			Int("size", len(wave)).
			Int64("delivered", delivered.Load()-waveDelivered).
			Int64("failed", failed.Load()-waveFailed).
			Msg("wave settled")
	}

	rep := Report{
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
		Pruned:    int(pruned.Load()),
		Waves:     waves,
	}
	d.log.Info().
		Int("recipients", len(recipients)).
		Int("payloads", len(payloads)).
		Int("waves", waves).
		Int("delivered", rep.Delivered).
		Int("failed", rep.Failed).
		Int("pruned", rep.Pruned).
		Dur("took", time.Since(start)).
		Msg("dispatch finished")
	return rep
}

func (d *Dispatcher) attempt(ctx context.Context, chatID int64, p transport.Payload, opt transport.SendOptions) error {
	if d.protection != nil {
		opt.Protected = d.protection.Protected(chatID)
	}
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	_, err := d.sender.Send(sctx, transport.ChatTarget{ChatID: chatID}, p, &opt)
	return err
}

// pause waits the inter-wave delay; false means the context was cancelled.
func (d *Dispatcher) pause(ctx context.Context) bool {
	t := time.NewTimer(d.cfg.WaveDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, transport.ErrRecipientGone)
}
