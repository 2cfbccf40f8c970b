// Package transport defines the adapter-neutral types exchanged between the
// bot core and a chat platform adapter.
package transport

import (
	"context"
	"errors"
)

// ErrRecipientGone marks a delivery failure as permanent: the recipient
// blocked the bot, deactivated their account, or the chat no longer exists.
// Callers use errors.Is to decide whether to prune the recipient.
var ErrRecipientGone = errors.New("recipient permanently unreachable")

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAnimation MediaKind = "animation"
)

// Payload is one deliverable unit: plain/markup text, a media reference, or
// media with a caption.
type Payload struct {
	Text     string
	MediaRef string // platform file reference; required when Kind != MediaNone
	Kind     MediaKind
}

type SendOptions struct {
	ParseMode      string // "HTML" or empty for plain text
	DisablePreview bool
	// Protected marks the message non-forwardable and non-saveable.
	Protected bool
}

// Sender delivers a single payload. Implementations must respect ctx and
// wrap permanent recipient loss with ErrRecipientGone.
type Sender interface {
	Send(ctx context.Context, to ChatTarget, p Payload, opt *SendOptions) (MessageRef, error)
}

// MemberStatus mirrors the platform's chat-member standing.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// MembershipClient looks up a subject's standing in a channel.
type MembershipClient interface {
	MemberStatus(ctx context.Context, channel string, subject int64) (MemberStatus, error)
}
