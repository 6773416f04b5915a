package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/trackbridge/internal/models"
)

var styles = NewPalette("#FF5500", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a small stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
	box   lipgloss.Style
}

// NewPalette builds a [Palette] from the accent, success, error, warning and muted colors.
func NewPalette(accent, success, failure, warning, muted string) *Palette {
	return &Palette{
		title: NewBold(accent).MarginBottom(1),
		ok:    NewBold(success),
		err:   NewBold(failure),
		warn:  NewStyle(warning),
		muted: NewStyle(muted).Italic(true),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(accent)).
			Padding(1, 2),
	}
}

// Status picks the style used to render a finished job's message.
func (p *Palette) Status(s models.JobStatus) lipgloss.Style {
	switch s {
	case models.StatusCompleted:
		return p.ok
	case models.StatusPartial, models.StatusCancelled:
		return p.warn
	default:
		return p.err
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}
