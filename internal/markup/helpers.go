package markup

import "html"

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) string { return html.EscapeString(s) }

func B(s string) string { return "<b>" + html.EscapeString(s) + "</b>" }
func I(s string) string { return "<i>" + html.EscapeString(s) + "</i>" }

// CodeInline renders inline monospace.
func CodeInline(s string) string { return "<code>" + html.EscapeString(s) + "</code>" }
