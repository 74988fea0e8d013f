package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// NormalizeChat turns a raw chat payload into the text commands are parsed
// from: markup tags are dropped, entities decoded, control characters
// removed and leading whitespace trimmed. Trailing whitespace is kept.
func NormalizeChat(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return strings.TrimLeftFunc(stripControl(raw), unicode.IsSpace)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimLeftFunc(stripControl(b.String()), unicode.IsSpace)
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			// <br> separates words in rendered chat
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte(' ')
			}
		}
	}
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// SplitCommand splits text that follows the trigger on its first run of
// whitespace. The remainder keeps its embedded and trailing whitespace.
func SplitCommand(body string) (name, args string) {
	i := strings.IndexFunc(body, unicode.IsSpace)
	if i < 0 {
		return body, ""
	}
	name = body[:i]
	args = strings.TrimLeftFunc(body[i:], unicode.IsSpace)
	return name, args
}

// Truncate shortens s to at most max runes, marking the cut with an ellipsis
// when there is room for one.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
