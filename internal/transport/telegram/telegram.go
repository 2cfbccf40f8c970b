// Package telegram adapts the transport interfaces to the Telegram Bot API
// via telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"cinebot/internal/transport"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	bot *tele.Bot
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b, log: log.With().Str("component", "telegram").Logger()}, nil
}

// Bot exposes the underlying telebot instance for handler registration.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start begins long polling; it blocks until Stop.
func (a *Adapter) Start() {
	a.log.Info().Msg("polling started")
	a.bot.Start()
}

func (a *Adapter) Stop() {
	a.bot.Stop()
	a.log.Info().Msg("polling stopped")
}

// Send delivers one payload. Permanent recipient loss (blocked, deactivated,
// chat gone) is wrapped with transport.ErrRecipientGone. The blocking telebot
// call runs in a goroutine so ctx expiry bounds the wait.
func (a *Adapter) Send(ctx context.Context, to transport.ChatTarget, p transport.Payload, opt *transport.SendOptions) (transport.MessageRef, error) {
	what, err := sendable(p)
	if err != nil {
		return transport.MessageRef{}, err
	}

	type result struct {
		msg *tele.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := a.bot.Send(tele.ChatID(to.ChatID), what, teleOptions(opt))
		ch <- result{m, err}
	}()

	select {
	case <-ctx.Done():
		return transport.MessageRef{}, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return transport.MessageRef{}, classify(r.err)
		}
		return transport.MessageRef{ChatID: to.ChatID, MessageID: r.msg.ID}, nil
	}
}

// MemberStatus looks up the subject's standing in a channel. The channel is
// either "@username" or a numeric chat id.
func (a *Adapter) MemberStatus(ctx context.Context, channel string, subject int64) (transport.MemberStatus, error) {
	chat, err := a.resolveChat(channel)
	if err != nil {
		return "", err
	}

	type result struct {
		member *tele.ChatMember
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := a.bot.ChatMemberOf(chat, &tele.User{ID: subject})
		ch <- result{m, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		return transport.MemberStatus(r.member.Role), nil
	}
}

func (a *Adapter) resolveChat(channel string) (*tele.Chat, error) {
	if strings.HasPrefix(channel, "@") {
		return a.bot.ChatByUsername(channel)
	}
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: bad channel identifier %q: %w", channel, err)
	}
	return &tele.Chat{ID: id}, nil
}

func sendable(p transport.Payload) (interface{}, error) {
	f := tele.File{FileID: p.MediaRef}
	switch p.Kind {
	case transport.MediaNone:
		if p.Text == "" {
			return nil, errors.New("telegram: empty payload")
		}
		return p.Text, nil
	case transport.MediaPhoto:
		return &tele.Photo{File: f, Caption: p.Text}, nil
	case transport.MediaVideo:
		return &tele.Video{File: f, Caption: p.Text}, nil
	case transport.MediaDocument:
		return &tele.Document{File: f, Caption: p.Text}, nil
	case transport.MediaAnimation:
		return &tele.Animation{File: f, Caption: p.Text}, nil
	default:
		return nil, fmt.Errorf("telegram: unsupported media kind %q", p.Kind)
	}
}

func teleOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		Protected:             opt.Protected,
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrNotStartedByUser),
		errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrKickedFromGroup),
		errors.Is(err, tele.ErrKickedFromSuperGroup),
		errors.Is(err, tele.ErrKickedFromChannel):
		return fmt.Errorf("%w: %v", transport.ErrRecipientGone, err)
	default:
		return err
	}
}
