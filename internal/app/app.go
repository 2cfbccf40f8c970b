// Package app wires the bot together: transport adapter, storage, quota,
// gate, dispatcher, notifier, and the scheduled jobs.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"cinebot/internal/broadcast"
	"cinebot/internal/config"
	"cinebot/internal/gate"
	"cinebot/internal/notify"
	"cinebot/internal/quota"
	"cinebot/internal/scheduler"
	"cinebot/internal/storage"
	"cinebot/internal/transport"
	"cinebot/internal/transport/telegram"
)

type App struct {
	log zerolog.Logger

	adapter  *telegram.Adapter
	store    storage.Store
	quota    *quota.Manager
	gate     *gate.Gate
	notifier *notify.Service
	sched    *scheduler.Service

	mu         sync.RWMutex
	cfg        *config.Config
	dispatcher *broadcast.Dispatcher

	admins map[int64]bool
}

// storeDirectory adapts the subscriber store to the dispatcher's pruning
// callback.
type storeDirectory struct {
	store storage.Store
}

func (d storeDirectory) Remove(ctx context.Context, chatID int64) error {
	return d.store.RemoveSubscriber(ctx, chatID)
}

func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout.Std(),
	}, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Std(),
	}, log)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(cfg.Scheduler.Timezone, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	noticeChat := cfg.Notify.ChatID
	if noticeChat == 0 {
		noticeChat = firstAdmin(cfg)
	}
	a := &App{
		log:      log.With().Str("component", "app").Logger(),
		adapter:  adapter,
		store:    store,
		quota:    quota.New(),
		notifier: notify.New(notify.Config{ChatID: noticeChat, RatePerMin: cfg.Notify.RatePerMin}, adapter, log),
		sched:    sched,
	}
	a.Apply(cfg)
	a.registerHandlers()

	if err := a.registerJobs(cfg); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// Apply installs a new config. Tunables (quota default, wave shape, required
// channels, admin set) take effect immediately; token and storage path
// changes need a restart.
func (a *App) Apply(cfg *config.Config) {
	admins := make(map[int64]bool, len(cfg.Operator.AdminIDs))
	for _, id := range cfg.Operator.AdminIDs {
		admins[id] = true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	a.admins = admins
	a.gate = gate.New(a.adapter, cfg.Gate.LookupTimeout.Std(), a.log)
	a.dispatcher = broadcast.New(broadcast.Config{
		WaveSize:    cfg.Broadcast.WaveSize,
		WaveDelay:   cfg.Broadcast.WaveDelay.Std(),
		SendTimeout: cfg.Broadcast.SendTimeout.Std(),
	}, a.adapter, storeDirectory{a.store}, a.quota, a.log)
}

func (a *App) registerJobs(cfg *config.Config) error {
	if err := a.sched.Add("quota-sweep", cfg.Scheduler.SweepSpec, 0, func(ctx context.Context) error {
		removed := a.quota.Sweep()
		a.log.Debug().Int("removed", removed).Msg("quota state swept")
		return nil
	}); err != nil {
		return err
	}
	return a.sched.Add("daily-digest", cfg.Scheduler.DigestSpec, 0, func(ctx context.Context) error {
		n, err := a.store.CountSubscribers(ctx)
		if err != nil {
			return err
		}
		a.notifier.Notify(fmt.Sprintf("Daily digest: %d subscribers.", n))
		return nil
	})
}

// Start launches the notifier, scheduler, and the blocking poll loop in a
// goroutine. It returns immediately.
func (a *App) Start(ctx context.Context) {
	a.notifier.Start(ctx)
	a.sched.Start()
	go a.adapter.Start()
	a.log.Info().Msg("bot started")
}

func (a *App) Stop() {
	a.adapter.Stop()
	a.sched.Stop()
	a.notifier.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("storage close failed")
	}
	a.log.Info().Msg("bot stopped")
}

func (a *App) isAdmin(id int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.admins[id]
}

func (a *App) snapshot() (*config.Config, *gate.Gate, *broadcast.Dispatcher) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg, a.gate, a.dispatcher
}

func firstAdmin(cfg *config.Config) int64 {
	if len(cfg.Operator.AdminIDs) > 0 {
		return cfg.Operator.AdminIDs[0]
	}
	return 0
}

var _ transport.Sender = (*telegram.Adapter)(nil)
