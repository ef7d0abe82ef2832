package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/arlowhite/gitadr/internal/record"
)

// Styling degrades to plain text on dumb terminals and pipes.
var renderer = lipgloss.NewRenderer(os.Stdout, termenv.WithColorCache(true))

var (
	stylePass   = renderer.NewStyle().Foreground(lipgloss.Color("10"))
	styleWarn   = renderer.NewStyle().Foreground(lipgloss.Color("11"))
	styleFail   = renderer.NewStyle().Foreground(lipgloss.Color("9"))
	styleAccent = renderer.NewStyle().Foreground(lipgloss.Color("12"))
	styleDim    = renderer.NewStyle().Faint(true)
	styleTitle  = renderer.NewStyle().Bold(true)
)

func renderPass(s string) string   { return stylePass.Render(s) }
func renderFail(s string) string   { return styleFail.Render(s) }
func renderAccent(s string) string { return styleAccent.Render(s) }
func renderDim(s string) string    { return styleDim.Render(s) }
func renderTitle(s string) string  { return styleTitle.Render(s) }

// renderStatus colors a record status the way reviewers read them:
// green for accepted, yellow for in-flight, red for rejected, dim for
// retired.
func renderStatus(s record.Status) string {
	switch s {
	case record.StatusAccepted:
		return stylePass.Render(string(s))
	case record.StatusDraft, record.StatusProposed:
		return styleWarn.Render(string(s))
	case record.StatusRejected:
		return styleFail.Render(string(s))
	case record.StatusDeprecated, record.StatusSuperseded:
		return styleDim.Render(string(s))
	}
	return string(s)
}
