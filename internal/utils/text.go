package utils

import "strings"

// Truncate shortens text to at most n runes, marking the cut with an ellipsis.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}

// OneLine collapses line breaks so text fits a single Markdown table cell.
func OneLine(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.ReplaceAll(text, "|", "/")
}
