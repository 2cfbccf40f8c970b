package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"

	"cinebot/internal/transport"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func openSQLite(cfg Config, log zerolog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log.With().Str("component", "storage").Logger()}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveMedia(ctx context.Context, rec MediaRecord) error {
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media(code, title, category, description, file_id, kind, added_at)
		 VALUES(?,?,?,?,?,?,?)`,
		rec.Code, rec.Title, rec.Category, rec.Description, rec.FileID, string(rec.Kind),
		rec.AddedAt.Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, rec.Code)
	}
	return err
}

func (s *sqliteStore) MediaByCode(ctx context.Context, code string) (MediaRecord, error) {
	var rec MediaRecord
	var kind, addedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT code, title, category, description, file_id, kind, added_at
		 FROM media WHERE code = ?`, code,
	).Scan(&rec.Code, &rec.Title, &rec.Category, &rec.Description, &rec.FileID, &kind, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaRecord{}, fmt.Errorf("%w: media %s", ErrNotFound, code)
	}
	if err != nil {
		return MediaRecord{}, err
	}
	rec.Kind = transport.MediaKind(kind)
	if t, perr := time.Parse(time.RFC3339Nano, addedAt); perr == nil {
		rec.AddedAt = t
	}
	return rec, nil
}

func (s *sqliteStore) AddSubscriber(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(chat_id, joined_at) VALUES(?,?)
		 ON CONFLICT(chat_id) DO NOTHING`,
		chatID, time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) RemoveSubscriber(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = ?`, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug().Int64("chat_id", chatID).Msg("subscriber removed")
	}
	return nil
}

func (s *sqliteStore) ListSubscribers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) CountSubscribers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n)
	return n, err
}
