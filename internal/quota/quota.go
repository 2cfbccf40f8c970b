// Package quota enforces a per-subject daily consumption cap with timed
// overrides.
//
// State is in-memory and process-scoped: it is a soft usage cap, not a
// security boundary. A durable deployment can put a keyed store behind the
// same Manager API without changing callers.
package quota

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrBadLimit    = errors.New("quota: limit must be positive")
	ErrBadDuration = errors.New("quota: duration must be a positive number of days")
)

// LimitOverride temporarily replaces the default daily limit.
type LimitOverride struct {
	Limit     int
	ExpiresAt time.Time
}

// ProtectionOverride temporarily switches content protection for a subject.
// Without an unexpired override content is protected (non-forwardable).
type ProtectionOverride struct {
	Enabled   bool
	ExpiresAt time.Time
}

type state struct {
	day        string // calendar day of last activity, "2006-01-02"
	consumed   int
	limit      *LimitOverride
	protection *ProtectionOverride
}

// Status is a read-only snapshot of a subject's effective quota state.
type Status struct {
	Consumed          int
	EffectiveLimit    int
	LimitOverride     *LimitOverride
	Protected         bool
	ProtectionExpires time.Time // zero when no override
}

// Manager owns the per-subject quota map. All methods are safe for
// concurrent use; the read-modify-write in CheckAndConsume is serialized by
// a single mutex, which is plenty for O(1) map operations.
type Manager struct {
	mu     sync.Mutex
	states map[int64]*state
	now    func() time.Time
}

func New() *Manager {
	return NewWithClock(time.Now)
}

// NewWithClock injects the clock; tests use it to simulate day rollover and
// override expiry.
func NewWithClock(now func() time.Time) *Manager {
	return &Manager{states: make(map[int64]*state), now: now}
}

// CheckAndConsume gates one unit of consumption. The counter resets to zero
// on the first check of a new calendar day; expired overrides are cleared
// the moment they are observed.
func (m *Manager) CheckAndConsume(subject int64, defaultLimit int) (allowed bool, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	st := m.stateLocked(subject, now)

	limit := defaultLimit
	if st.limit != nil {
		limit = st.limit.Limit
	}

	if st.consumed >= limit {
		return false, 0
	}
	st.consumed++
	return true, limit - st.consumed
}

// SetLimitOverride installs or replaces the subject's limit override for the
// given number of days. Invalid input is rejected without touching state.
func (m *Manager) SetLimitOverride(subject int64, limit, days int) error {
	if limit <= 0 {
		return ErrBadLimit
	}
	if days <= 0 {
		return ErrBadDuration
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	st := m.stateLocked(subject, now)
	st.limit = &LimitOverride{Limit: limit, ExpiresAt: now.AddDate(0, 0, days)}
	return nil
}

// SetProtectionOverride installs or replaces the subject's protection
// override. enabled=false lifts the default forward-block until expiry.
func (m *Manager) SetProtectionOverride(subject int64, enabled bool, days int) error {
	if days <= 0 {
		return ErrBadDuration
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	st := m.stateLocked(subject, now)
	st.protection = &ProtectionOverride{Enabled: enabled, ExpiresAt: now.AddDate(0, 0, days)}
	return nil
}

// Protected reports whether content sent to the subject must be marked
// non-forwardable. Default is true.
func (m *Manager) Protected(subject int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(subject, m.now())
	if st.protection == nil {
		return true
	}
	return st.protection.Enabled
}

// Status returns the subject's effective state without consuming anything.
func (m *Manager) Status(subject int64, defaultLimit int) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(subject, m.now())
	s := Status{Consumed: st.consumed, EffectiveLimit: defaultLimit, Protected: true}
	if st.limit != nil {
		ov := *st.limit
		s.LimitOverride = &ov
		s.EffectiveLimit = ov.Limit
	}
	if st.protection != nil {
		s.Protected = st.protection.Enabled
		s.ProtectionExpires = st.protection.ExpiresAt
	}
	return s
}

// Sweep drops expired overrides and whole entries with no activity today and
// nothing pending. Returns the number of entries removed. Intended for a
// daily janitor job; correctness does not depend on it because expiry is
// also applied lazily on every read.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	today := dayOf(now)
	removed := 0
	for id, st := range m.states {
		clearExpiredLocked(st, now)
		if st.day != today && st.limit == nil && st.protection == nil {
			delete(m.states, id)
			removed++
		}
	}
	return removed
}

// stateLocked returns the subject's state, lazily created, with the daily
// reset and one-time override expiry applied. Caller holds m.mu.
func (m *Manager) stateLocked(subject int64, now time.Time) *state {
	st, ok := m.states[subject]
	if !ok {
		st = &state{day: dayOf(now)}
		m.states[subject] = st
	}
	clearExpiredLocked(st, now)
	if today := dayOf(now); st.day != today {
		st.day = today
		st.consumed = 0
	}
	return st
}

func clearExpiredLocked(st *state, now time.Time) {
	if st.limit != nil && !now.Before(st.limit.ExpiresAt) {
		st.limit = nil
	}
	if st.protection != nil && !now.Before(st.protection.ExpiresAt) {
		st.protection = nil
	}
}

func dayOf(t time.Time) string { return t.Format("2006-01-02") }
