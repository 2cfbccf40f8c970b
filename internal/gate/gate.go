// Package gate verifies that a subject has joined every required channel
// before a protected action is allowed.
package gate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cinebot/internal/transport"
)

const defaultLookupTimeout = 5 * time.Second

type Gate struct {
	client  transport.MembershipClient
	timeout time.Duration
	log     zerolog.Logger
}

func New(client transport.MembershipClient, lookupTimeout time.Duration, log zerolog.Logger) *Gate {
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	return &Gate{client: client, timeout: lookupTimeout, log: log.With().Str("component", "gate").Logger()}
}

// Unmet returns the required channels the subject has not joined. An empty
// result means the gate passes. Lookups are deliberately uncached so every
// check sees the current membership; a failed lookup counts as not joined.
func (g *Gate) Unmet(ctx context.Context, subject int64, required []string) []string {
	var unmet []string
	for _, ch := range required {
		if !g.joined(ctx, ch, subject) {
			unmet = append(unmet, ch)
		}
	}
	return unmet
}

func (g *Gate) joined(ctx context.Context, channel string, subject int64) bool {
	lctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	status, err := g.client.MemberStatus(lctx, channel, subject)
	if err != nil {
		// Fail closed: an unverifiable membership is treated as absent.
		g.log.Warn().Err(err).Str("channel", channel).Int64("subject", subject).Msg("membership lookup failed")
		return false
	}
	switch status {
	case transport.StatusMember, transport.StatusAdministrator, transport.StatusCreator:
		return true
	default:
		return false
	}
}
