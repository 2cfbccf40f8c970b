package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"cinebot/internal/transport"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "bot.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMediaRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rec := MediaRecord{
		Code:        "12",
		Title:       "Title",
		Category:    "Action",
		Description: "<b>Hello</b>\nWorld",
		FileID:      "file-abc",
		Kind:        transport.MediaVideo,
	}
	if err := st.SaveMedia(ctx, rec); err != nil {
		t.Fatalf("SaveMedia: %v", err)
	}

	got, err := st.MediaByCode(ctx, "12")
	if err != nil {
		t.Fatalf("MediaByCode: %v", err)
	}
	if got.Title != rec.Title || got.Category != rec.Category || got.Description != rec.Description ||
		got.FileID != rec.FileID || got.Kind != rec.Kind {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.AddedAt.IsZero() {
		t.Fatal("AddedAt not persisted")
	}
}

func TestMediaCodeIsImmutable(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveMedia(ctx, MediaRecord{Code: "7", Title: "A", FileID: "f", Kind: transport.MediaPhoto}); err != nil {
		t.Fatalf("SaveMedia: %v", err)
	}
	err := st.SaveMedia(ctx, MediaRecord{Code: "7", Title: "B", FileID: "g", Kind: transport.MediaPhoto})
	if !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("want ErrDuplicateCode, got %v", err)
	}
	got, err := st.MediaByCode(ctx, "7")
	if err != nil {
		t.Fatalf("MediaByCode: %v", err)
	}
	if got.Title != "A" {
		t.Fatalf("existing record mutated: %+v", got)
	}
}

func TestMediaNotFound(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.MediaByCode(context.Background(), "404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSubscriberDirectory(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2, 1} { // duplicate add is a no-op
		if err := st.AddSubscriber(ctx, id); err != nil {
			t.Fatalf("AddSubscriber(%d): %v", id, err)
		}
	}
	if n, _ := st.CountSubscribers(ctx); n != 3 {
		t.Fatalf("count %d, want 3", n)
	}

	if err := st.RemoveSubscriber(ctx, 2); err != nil {
		t.Fatalf("RemoveSubscriber: %v", err)
	}
	ids, err := st.ListSubscribers(ctx)
	if err != nil {
		t.Fatalf("ListSubscribers: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("subscribers %v, want [1 3]", ids)
	}

	// Removing an absent subscriber is not an error.
	if err := st.RemoveSubscriber(ctx, 99); err != nil {
		t.Fatalf("RemoveSubscriber(absent): %v", err)
	}
}
