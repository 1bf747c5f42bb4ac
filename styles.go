package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

var (
	keywordStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"})
	paragraphStyle = lipgloss.NewStyle().Margin(1, 0, 0, 2)
)

// keyword colors a word in help text.
func keyword(s string) string {
	return keywordStyle.Render(s)
}

// paragraph formats a block of help text at a comfortable width.
func paragraph(s string) string {
	return paragraphStyle.Render(wordwrap.String(strings.TrimSpace(s), 78))
}
