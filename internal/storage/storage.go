// Package storage persists media records and the subscriber directory.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cinebot/internal/transport"
)

var (
	ErrNotFound      = errors.New("storage: not found")
	ErrDuplicateCode = errors.New("storage: code already exists")
)

// MediaRecord is a stored media item. Code is unique and immutable once the
// record is accepted; Description arrives already rendered to markup.
type MediaRecord struct {
	Code        string
	Title       string
	Category    string
	Description string
	FileID      string
	Kind        transport.MediaKind
	AddedAt     time.Time
}

// Store is the persistence API used by the bot core.
type Store interface {
	SaveMedia(ctx context.Context, rec MediaRecord) error
	MediaByCode(ctx context.Context, code string) (MediaRecord, error)

	AddSubscriber(ctx context.Context, chatID int64) error
	RemoveSubscriber(ctx context.Context, chatID int64) error
	ListSubscribers(ctx context.Context) ([]int64, error)
	CountSubscribers(ctx context.Context) (int, error)

	Close() error
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Open initializes the SQLite store at cfg.Path.
func Open(cfg Config, log zerolog.Logger) (Store, error) {
	return openSQLite(cfg, log)
}
