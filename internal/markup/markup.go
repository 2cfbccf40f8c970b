// Package markup renders text with formatting spans into Telegram HTML.
//
// Spans may overlap, nest, or duplicate each other; rendering never fails.
// The renderer flattens spans into an open/close event list and emits tags in
// a single left-to-right sweep, so it needs no span tree. Ordering rules keep
// the produced nesting non-crossing: at a given position all closes are
// emitted before any open, wider spans open first (outermost), and closes
// unwind innermost-first.
package markup

import (
	"html"
	"sort"
	"strings"
)

type Kind string

const (
	Bold          Kind = "bold"
	Italic        Kind = "italic"
	Underline     Kind = "underline"
	Strikethrough Kind = "strikethrough"
	Code          Kind = "code"
	Preformatted  Kind = "preformatted"
	Spoiler       Kind = "spoiler"
	Quote         Kind = "quote"
	Link          Kind = "link"
)

// Span is a contiguous run of codepoints carrying one formatting attribute.
// Offset and Length are in codepoints, not bytes.
type Span struct {
	Offset int
	Length int
	Kind   Kind
	URL    string // Link only
}

type event struct {
	pos    int
	open   bool
	length int // span length, for nesting order at equal positions
	seq    int // input order, tiebreaker
	tag    string
}

// Render produces HTML safe for Telegram's HTML parse mode. Text outside and
// inside spans is entity-escaped; tags themselves are not. Spans of unknown
// kind render as plain escaped text. Spans reaching outside the text are
// clamped rather than rejected.
func Render(text string, spans []Span) string {
	runes := []rune(text)
	if len(spans) == 0 {
		return html.EscapeString(text)
	}

	events := make([]event, 0, 2*len(spans))
	for i, sp := range spans {
		open, close, ok := tags(sp)
		if !ok {
			continue
		}
		start, end := sp.Offset, sp.Offset+sp.Length
		if start < 0 {
			start = 0
		}
		if end > len(runes) {
			end = len(runes)
		}
		if end <= start {
			continue
		}
		length := end - start
		events = append(events,
			event{pos: start, open: true, length: length, seq: i, tag: open},
			event{pos: end, open: false, length: length, seq: i, tag: close},
		)
	}
	if len(events) == 0 {
		return html.EscapeString(text)
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		// A span ending here must fully close before any span opens here.
		if a.open != b.open {
			return !a.open
		}
		if a.open {
			// Wider spans open first so they end up outermost; equal
			// widths keep input order.
			if a.length != b.length {
				return a.length > b.length
			}
			return a.seq < b.seq
		}
		// Closes unwind innermost-first: narrower spans close first,
		// equal widths in reverse input order.
		if a.length != b.length {
			return a.length < b.length
		}
		return a.seq > b.seq
	})

	var b strings.Builder
	b.Grow(len(text) + 16*len(events))
	last := 0
	for _, ev := range events {
		if ev.pos > last {
			b.WriteString(html.EscapeString(string(runes[last:ev.pos])))
			last = ev.pos
		}
		b.WriteString(ev.tag)
	}
	if last < len(runes) {
		b.WriteString(html.EscapeString(string(runes[last:])))
	}
	return b.String()
}

func tags(sp Span) (open, close string, ok bool) {
	switch sp.Kind {
	case Bold:
		return "<b>", "</b>", true
	case Italic:
		return "<i>", "</i>", true
	case Underline:
		return "<u>", "</u>", true
	case Strikethrough:
		return "<s>", "</s>", true
	case Code:
		return "<code>", "</code>", true
	case Preformatted:
		return "<pre>", "</pre>", true
	case Spoiler:
		return "<tg-spoiler>", "</tg-spoiler>", true
	case Quote:
		return "<blockquote>", "</blockquote>", true
	case Link:
		return `<a href="` + html.EscapeString(sp.URL) + `">`, "</a>", true
	default:
		return "", "", false
	}
}
