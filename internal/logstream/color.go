// Package logstream renders worker output lines for the terminal: a
// timestamped, per-instance colored prefix followed by the highlighted line.
package logstream

import (
	"hash/crc32"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette holds the instance prefix colors as ANSI codes: cyan, green,
// yellow, blue, magenta, white.
var Palette = []lipgloss.Color{"6", "2", "3", "4", "5", "7"}

// ColorFor picks a stable palette color for an instance name, so the same
// name keeps its color across restarts and invocations.
func ColorFor(name string) lipgloss.Color {
	return Palette[crc32.ChecksumIEEE([]byte(name))%uint32(len(Palette))]
}

// NewRenderer returns a renderer for w. With noColor every style renders as
// plain text; otherwise the profile is detected from w and the environment.
func NewRenderer(w io.Writer, noColor bool) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return r
}
