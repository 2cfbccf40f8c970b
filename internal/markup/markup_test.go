package markup

import "testing"

func TestRenderNoSpans(t *testing.T) {
	got := Render("a < b & c > d", nil)
	want := "a &lt; b &amp; c &gt; d"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderSingleSpan(t *testing.T) {
	got := Render("Hello world", []Span{{Offset: 0, Length: 5, Kind: Bold}})
	want := "<b>Hello</b> world"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderNestedSpans(t *testing.T) {
	// Wider span opens first; the narrower one closes before the wider one.
	got := Render("Hello world", []Span{
		{Offset: 0, Length: 11, Kind: Bold},
		{Offset: 0, Length: 5, Kind: Italic},
	})
	want := "<b><i>Hello</i> world</b>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderNestedSpansInputOrderIndependent(t *testing.T) {
	// Same spans, narrower listed first: ordering rule still nests correctly.
	got := Render("Hello world", []Span{
		{Offset: 0, Length: 5, Kind: Italic},
		{Offset: 0, Length: 11, Kind: Bold},
	})
	want := "<b><i>Hello</i> world</b>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderAdjacentSpansCloseBeforeOpen(t *testing.T) {
	got := Render("foobar", []Span{
		{Offset: 0, Length: 3, Kind: Bold},
		{Offset: 3, Length: 3, Kind: Italic},
	})
	want := "<b>foo</b><i>bar</i>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderIdenticalSpansLIFO(t *testing.T) {
	got := Render("hi", []Span{
		{Offset: 0, Length: 2, Kind: Bold},
		{Offset: 0, Length: 2, Kind: Italic},
	})
	want := "<b><i>hi</i></b>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderEscapesInsideSpans(t *testing.T) {
	got := Render("a<b", []Span{{Offset: 0, Length: 3, Kind: Code}})
	want := "<code>a&lt;b</code>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderLink(t *testing.T) {
	got := Render("see here", []Span{{Offset: 4, Length: 4, Kind: Link, URL: `https://example.com/?a=1&b="x"`}})
	want := `see <a href="https://example.com/?a=1&amp;b=&#34;x&#34;">here</a>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderUnknownKindDegrades(t *testing.T) {
	got := Render("plain", []Span{{Offset: 0, Length: 5, Kind: Kind("sparkles")}})
	if got != "plain" {
		t.Fatalf("got %q, want %q", got, "plain")
	}
}

func TestRenderClampsOutOfRangeSpan(t *testing.T) {
	got := Render("abc", []Span{{Offset: 1, Length: 99, Kind: Bold}})
	want := "a<b>bc</b>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderCodepointOffsets(t *testing.T) {
	// Offsets count runes, not bytes.
	got := Render("héllo wörld", []Span{{Offset: 6, Length: 5, Kind: Bold}})
	want := "héllo <b>wörld</b>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderSpoilerAndQuote(t *testing.T) {
	got := Render("secret", []Span{{Offset: 0, Length: 6, Kind: Spoiler}})
	if got != "<tg-spoiler>secret</tg-spoiler>" {
		t.Fatalf("spoiler: got %q", got)
	}
	got = Render("quoted", []Span{{Offset: 0, Length: 6, Kind: Quote}})
	if got != "<blockquote>quoted</blockquote>" {
		t.Fatalf("quote: got %q", got)
	}
}

func TestRenderOverlappingNonNested(t *testing.T) {
	// Crossing spans produce crossing tags; the renderer degrades rather
	// than erroring, and all text survives escaped.
	got := Render("abcdef", []Span{
		{Offset: 0, Length: 4, Kind: Bold},
		{Offset: 2, Length: 4, Kind: Italic},
	})
	want := "<b>ab<i>cd</b>ef</i>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
