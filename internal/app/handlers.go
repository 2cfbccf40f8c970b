package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"cinebot/internal/caption"
	"cinebot/internal/markup"
	"cinebot/internal/storage"
	"cinebot/internal/transport"
	"cinebot/internal/transport/telegram"
)

const handlerTimeout = 30 * time.Second

var htmlOpts = &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}

func (a *App) registerHandlers() {
	b := a.adapter.Bot()

	b.Handle("/start", a.handleStart)
	b.Handle("/broadcast", a.adminOnly(a.handleBroadcast))
	b.Handle("/setlimit", a.adminOnly(a.handleSetLimit))
	b.Handle("/setprotection", a.adminOnly(a.handleSetProtection))
	b.Handle("/quota", a.adminOnly(a.handleQuotaStatus))
	b.Handle(tele.OnText, a.handleCodeRequest)

	ingest := a.adminOnly(a.handleIngest)
	b.Handle(tele.OnPhoto, ingest)
	b.Handle(tele.OnVideo, ingest)
	b.Handle(tele.OnDocument, ingest)
	b.Handle(tele.OnAnimation, ingest)
}

func (a *App) adminOnly(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || !a.isAdmin(c.Sender().ID) {
			return nil
		}
		return h(c)
	}
}

func (a *App) handleStart(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := a.store.AddSubscriber(ctx, c.Chat().ID); err != nil {
		a.log.Warn().Err(err).Int64("chat_id", c.Chat().ID).Msg("subscribe failed")
		return c.Send("Something went wrong, please try again.")
	}
	return c.Send("Welcome! Send a film code to receive it.")
}

var codeRequestRe = regexp.MustCompile(`^#?([0-9]+)$`)

// handleCodeRequest serves a media item by code: membership gate first, then
// the daily quota, then delivery with the subject's protection setting.
func (a *App) handleCodeRequest(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	m := codeRequestRe.FindStringSubmatch(strings.TrimSpace(c.Text()))
	if m == nil {
		return nil
	}
	code := m[1]
	subject := c.Sender().ID

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	cfg, g, _ := a.snapshot()
	if unmet := g.Unmet(ctx, subject, cfg.Gate.RequiredChannels); len(unmet) > 0 {
		var sb strings.Builder
		sb.WriteString("Please join the required channels first:\n")
		for _, ch := range unmet {
			sb.WriteString("• " + markup.Esc(ch) + "\n")
		}
		return c.Send(sb.String(), htmlOpts)
	}

	allowed, remaining := a.quota.CheckAndConsume(subject, cfg.Quota.DefaultLimit)
	if !allowed {
		return c.Send("Daily limit reached. Come back tomorrow!")
	}

	rec, err := a.store.MediaByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(fmt.Sprintf("No film with code %s.", markup.CodeInline(code)), htmlOpts)
		}
		a.log.Error().Err(err).Str("code", code).Msg("media lookup failed")
		return c.Send("Something went wrong, please try again.")
	}

	_, err = a.adapter.Send(ctx, transport.ChatTarget{ChatID: c.Chat().ID}, mediaPayload(rec), &transport.SendOptions{
		ParseMode: tele.ModeHTML,
		Protected: a.quota.Protected(subject),
	})
	if err != nil {
		a.log.Warn().Err(err).Str("code", code).Int64("chat_id", c.Chat().ID).Msg("delivery failed")
		return nil
	}
	if remaining > 0 {
		return c.Send(fmt.Sprintf("%d request(s) left today.", remaining))
	}
	return c.Send("That was your last request for today.")
}

// handleIngest parses an admin-authored media caption into a record.
// A parse failure discards the submission and pings the operator chat;
// no partial record is ever stored.
func (a *App) handleIngest(c tele.Context) error {
	msg := c.Message()
	fileID, kind := mediaOf(msg)
	if fileID == "" {
		return nil
	}

	res, err := caption.Parse(msg.Caption)
	if err != nil {
		a.notifier.Notify(fmt.Sprintf("Rejected media submission: %v", err))
		return c.Reply(fmt.Sprintf("Caption rejected: %v", err))
	}

	description := ""
	if res.DescriptionOffset >= 0 {
		spans := telegram.SpansFromEntities(msg.Caption, msg.CaptionEntities)
		description = markup.Render(res.Description, caption.SliceSpans(spans, res.DescriptionOffset))
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	rec := storage.MediaRecord{
		Code:        res.Code,
		Title:       res.Title,
		Category:    res.Category,
		Description: description,
		FileID:      fileID,
		Kind:        kind,
	}
	if err := a.store.SaveMedia(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateCode) {
			return c.Reply(fmt.Sprintf("Code %s already exists.", markup.CodeInline(res.Code)), htmlOpts)
		}
		a.log.Error().Err(err).Str("code", res.Code).Msg("media save failed")
		return c.Reply("Saving failed, please try again.")
	}
	a.log.Info().Str("code", res.Code).Str("title", res.Title).Msg("media ingested")
	return c.Reply(fmt.Sprintf("Saved %s — %s.", markup.CodeInline(res.Code), markup.B(res.Title)), htmlOpts)
}

// handleBroadcast fans stored media (by code) or a text announcement out to
// every subscriber. The run happens in the background; the report lands in
// the operator chat.
func (a *App) handleBroadcast(c tele.Context) error {
	args := strings.Fields(c.Message().Payload)
	if len(args) == 0 {
		return c.Reply("Usage: /broadcast <code> [code ...] or /broadcast <text>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	payloads, err := a.broadcastPayloads(ctx, args, c.Message().Payload)
	if err != nil {
		return c.Reply(err.Error())
	}
	recipients, err := a.store.ListSubscribers(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("subscriber listing failed")
		return c.Reply("Could not list subscribers.")
	}
	if len(recipients) == 0 {
		return c.Reply("No subscribers yet.")
	}

	_, _, dispatcher := a.snapshot()
	go func() {
		rep := dispatcher.Dispatch(context.Background(), recipients, payloads, transport.SendOptions{
			ParseMode: tele.ModeHTML,
		})
		a.notifier.Notify(fmt.Sprintf(
			"Broadcast finished: %d delivered, %d failed, %d pruned.",
			rep.Delivered, rep.Failed, rep.Pruned,
		))
	}()
	return c.Reply(fmt.Sprintf("Broadcasting %d payload(s) to %d subscribers.", len(payloads), len(recipients)))
}

// broadcastPayloads resolves /broadcast arguments: all-numeric args are
// stored media codes, anything else makes the raw text a single payload.
func (a *App) broadcastPayloads(ctx context.Context, args []string, raw string) ([]transport.Payload, error) {
	allCodes := true
	for _, arg := range args {
		if !codeRequestRe.MatchString(arg) {
			allCodes = false
			break
		}
	}
	if !allCodes {
		return []transport.Payload{{Text: markup.Esc(raw)}}, nil
	}

	payloads := make([]transport.Payload, 0, len(args))
	for _, arg := range args {
		code := strings.TrimPrefix(arg, "#")
		rec, err := a.store.MediaByCode(ctx, code)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("no film with code %s", code)
			}
			return nil, errors.New("media lookup failed")
		}
		payloads = append(payloads, mediaPayload(rec))
	}
	return payloads, nil
}

func (a *App) handleSetLimit(c tele.Context) error {
	args := strings.Fields(c.Message().Payload)
	if len(args) != 3 {
		return c.Reply("Usage: /setlimit <user_id> <limit> <days>")
	}
	subject, err1 := strconv.ParseInt(args[0], 10, 64)
	limit, err2 := strconv.Atoi(args[1])
	days, err3 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return c.Reply("All three arguments must be numbers.")
	}
	if err := a.quota.SetLimitOverride(subject, limit, days); err != nil {
		return c.Reply(err.Error())
	}
	return c.Reply(fmt.Sprintf("Limit for %d set to %d for %d day(s).", subject, limit, days))
}

func (a *App) handleSetProtection(c tele.Context) error {
	args := strings.Fields(c.Message().Payload)
	if len(args) != 3 {
		return c.Reply("Usage: /setprotection <user_id> <on|off> <days>")
	}
	subject, err1 := strconv.ParseInt(args[0], 10, 64)
	days, err3 := strconv.Atoi(args[2])
	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return c.Reply("Second argument must be on or off.")
	}
	if err1 != nil || err3 != nil {
		return c.Reply("User id and days must be numbers.")
	}
	if err := a.quota.SetProtectionOverride(subject, enabled, days); err != nil {
		return c.Reply(err.Error())
	}
	return c.Reply(fmt.Sprintf("Protection for %d set to %s for %d day(s).", subject, args[1], days))
}

func (a *App) handleQuotaStatus(c tele.Context) error {
	args := strings.Fields(c.Message().Payload)
	if len(args) != 1 {
		return c.Reply("Usage: /quota <user_id>")
	}
	subject, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("User id must be a number.")
	}

	cfg, _, _ := a.snapshot()
	st := a.quota.Status(subject, cfg.Quota.DefaultLimit)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Consumed today: %d/%d\n", st.Consumed, st.EffectiveLimit)
	if st.LimitOverride != nil {
		fmt.Fprintf(&sb, "Limit override until %s\n", st.LimitOverride.ExpiresAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&sb, "Protected: %v", st.Protected)
	if !st.ProtectionExpires.IsZero() {
		fmt.Fprintf(&sb, " (override until %s)", st.ProtectionExpires.Format("2006-01-02 15:04"))
	}
	return c.Reply(sb.String())
}

// mediaPayload builds the deliverable for a stored record; the caption
// carries the pre-rendered description.
func mediaPayload(rec storage.MediaRecord) transport.Payload {
	var sb strings.Builder
	sb.WriteString(markup.B(rec.Title))
	if rec.Category != "" {
		sb.WriteString("\n" + markup.I(rec.Category))
	}
	if rec.Description != "" {
		sb.WriteString("\n\n" + rec.Description)
	}
	return transport.Payload{Text: sb.String(), MediaRef: rec.FileID, Kind: rec.Kind}
}

func mediaOf(m *tele.Message) (fileID string, kind transport.MediaKind) {
	switch {
	case m == nil:
		return "", transport.MediaNone
	case m.Photo != nil:
		return m.Photo.FileID, transport.MediaPhoto
	case m.Video != nil:
		return m.Video.FileID, transport.MediaVideo
	case m.Animation != nil:
		return m.Animation.FileID, transport.MediaAnimation
	case m.Document != nil:
		return m.Document.FileID, transport.MediaDocument
	default:
		return "", transport.MediaNone
	}
}
