// Package caption parses admin-authored media captions into structured
// records.
//
// The expected shape is freeform:
//
//	#123 - Some Title
//	Category: Action
//	Description: first line
//	any further lines, kept verbatim
//
// Only the first line is mandatory. Everything after the first
// "Description:" marker is the description, line breaks included.
package caption

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"cinebot/internal/markup"
)

var (
	ErrNoCode     = errors.New("caption: first line has no numeric code")
	ErrEmptyTitle = errors.New("caption: title is empty")
)

// Result is the parsed record. Code and Title are always set on success.
// DescriptionOffset is the codepoint index into the raw caption where the
// description content begins, or -1 when there is no description; callers
// use it to re-base formatting spans before rendering.
type Result struct {
	Code              string
	Title             string
	Category          string
	Description       string
	DescriptionOffset int
}

// First line: optional '#', digits, then a separator (whitespace or common
// punctuation) and the title.
var firstLineRe = regexp.MustCompile(`^#?([0-9]+)(?:\s*[.:\-–—|]\s*|\s+)(.*)$`)

const (
	categoryMarker    = "category:"
	descriptionMarker = "description:"
)

// Parse extracts the structured record from a raw caption. It fails only on
// a malformed first line; missing Category/Description markers simply leave
// those fields empty.
func Parse(raw string) (Result, error) {
	res := Result{DescriptionOffset: -1}

	firstLine, rest, _ := strings.Cut(raw, "\n")
	m := firstLineRe.FindStringSubmatch(strings.TrimRight(firstLine, "\r"))
	if m == nil {
		return Result{}, ErrNoCode
	}
	res.Code = m[1]
	res.Title = strings.TrimSpace(m[2])
	if res.Title == "" {
		return Result{}, ErrEmptyTitle
	}

	// Byte offset of the current line within raw.
	lineStart := len(firstLine) + 1
	sawCategory := false
	for lineStart <= len(raw) {
		line := rest
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i], rest[i+1:]
		} else {
			rest = ""
		}
		trimmed := strings.TrimRight(line, "\r")

		if !sawCategory && hasFoldPrefix(trimmed, categoryMarker) {
			sawCategory = true
			res.Category = strings.TrimSpace(trimmed[len(categoryMarker):])
			lineStart += len(line) + 1
			continue
		}
		if hasFoldPrefix(trimmed, descriptionMarker) {
			// Description content starts after the marker and any
			// leading spaces; from there everything is verbatim.
			start := lineStart + len(descriptionMarker)
			for start < len(raw) && (raw[start] == ' ' || raw[start] == '\t') {
				start++
			}
			res.Description = raw[start:]
			res.DescriptionOffset = utf8.RuneCountInString(raw[:start])
			return res, nil
		}
		lineStart += len(line) + 1
	}
	return res, nil
}

// SliceSpans re-bases spans onto the description substring: spans starting
// at or after descOffset (in codepoints) are kept with descOffset
// subtracted, the rest are dropped.
func SliceSpans(spans []markup.Span, descOffset int) []markup.Span {
	if descOffset < 0 {
		return nil
	}
	out := make([]markup.Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Offset < descOffset {
			continue
		}
		sp.Offset -= descOffset
		out = append(out, sp)
	}
	return out
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
