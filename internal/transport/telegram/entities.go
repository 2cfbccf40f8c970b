package telegram

import (
	tele "gopkg.in/telebot.v4"

	"cinebot/internal/markup"
)

// SpansFromEntities converts Telegram message entities into renderer spans.
// Telegram counts entity offsets in UTF-16 code units; the renderer works in
// codepoints, so offsets are re-measured against the text. Entities of kinds
// the renderer has no tag for are dropped here.
func SpansFromEntities(text string, ents []tele.MessageEntity) []markup.Span {
	if len(ents) == 0 {
		return nil
	}

	// runeOf[u] is the rune index at UTF-16 unit u. Runes above the BMP
	// occupy two units; an offset landing on the second unit of a
	// surrogate pair maps to that rune's start.
	var runeOf []int
	runeIdx := 0
	for _, r := range text {
		runeOf = append(runeOf, runeIdx)
		if r > 0xFFFF {
			runeOf = append(runeOf, runeIdx)
		}
		runeIdx++
	}
	runeOf = append(runeOf, runeIdx) // end sentinel

	spans := make([]markup.Span, 0, len(ents))
	for _, e := range ents {
		kind, ok := kindOf(e)
		if !ok {
			continue
		}
		start, end := e.Offset, e.Offset+e.Length
		if start < 0 || start >= len(runeOf) {
			continue
		}
		if end >= len(runeOf) {
			end = len(runeOf) - 1
		}
		rs, re := runeOf[start], runeOf[end]
		if re <= rs {
			continue
		}
		spans = append(spans, markup.Span{Offset: rs, Length: re - rs, Kind: kind, URL: e.URL})
	}
	return spans
}

func kindOf(e tele.MessageEntity) (markup.Kind, bool) {
	switch string(e.Type) {
	case "bold":
		return markup.Bold, true
	case "italic":
		return markup.Italic, true
	case "underline":
		return markup.Underline, true
	case "strikethrough":
		return markup.Strikethrough, true
	case "code":
		return markup.Code, true
	case "pre":
		return markup.Preformatted, true
	case "spoiler":
		return markup.Spoiler, true
	case "blockquote", "expandable_blockquote":
		return markup.Quote, true
	case "text_link":
		return markup.Link, true
	default:
		return "", false
	}
}
