package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"cinebot/internal/storage"
	"cinebot/internal/transport"
)

func testApp(t *testing.T) *App {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return &App{log: zerolog.Nop(), store: st}
}

func TestMediaPayloadComposition(t *testing.T) {
	rec := storage.MediaRecord{
		Code:        "12",
		Title:       "Film & Co",
		Category:    "Action",
		Description: "<b>bold</b> part",
		FileID:      "f1",
		Kind:        transport.MediaVideo,
	}
	p := mediaPayload(rec)
	if p.MediaRef != "f1" || p.Kind != transport.MediaVideo {
		t.Fatalf("media ref/kind: %+v", p)
	}
	want := "<b>Film &amp; Co</b>\n<i>Action</i>\n\n<b>bold</b> part"
	if p.Text != want {
		t.Fatalf("caption %q, want %q", p.Text, want)
	}
}

func TestBroadcastPayloadsFromCodes(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	for _, code := range []string{"1", "2"} {
		err := a.store.SaveMedia(ctx, storage.MediaRecord{
			Code: code, Title: "T" + code, FileID: "f" + code, Kind: transport.MediaPhoto,
		})
		if err != nil {
			t.Fatalf("SaveMedia: %v", err)
		}
	}

	payloads, err := a.broadcastPayloads(ctx, []string{"1", "#2"}, "1 #2")
	if err != nil {
		t.Fatalf("broadcastPayloads: %v", err)
	}
	if len(payloads) != 2 || payloads[0].MediaRef != "f1" || payloads[1].MediaRef != "f2" {
		t.Fatalf("payloads %+v", payloads)
	}

	if _, err := a.broadcastPayloads(ctx, []string{"404"}, "404"); err == nil {
		t.Fatal("unknown code must fail")
	}
}

func TestBroadcastPayloadsFreeText(t *testing.T) {
	a := testApp(t)
	payloads, err := a.broadcastPayloads(context.Background(), []string{"new", "films", "<soon>"}, "new films <soon>")
	if err != nil {
		t.Fatalf("broadcastPayloads: %v", err)
	}
	if len(payloads) != 1 || payloads[0].Kind != transport.MediaNone {
		t.Fatalf("payloads %+v", payloads)
	}
	if !strings.Contains(payloads[0].Text, "&lt;soon&gt;") {
		t.Fatalf("announcement not escaped: %q", payloads[0].Text)
	}
}
