package logstream

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	timeLayout         = "15:04:05"
	detailedTimeLayout = "2006-01-02 15:04:05"
)

// Formatter turns raw worker output lines into display lines.
type Formatter struct {
	r        *lipgloss.Renderer
	styles   Styles
	detailed bool
	now      func() time.Time
}

// NewFormatter binds a formatter to r. Detailed mode uses full dates and
// adds job id and job class annotations.
func NewFormatter(r *lipgloss.Renderer, detailed bool) *Formatter {
	return &Formatter{r: r, styles: NewStyles(r), detailed: detailed, now: time.Now}
}

// Format renders one line of instance output. Blank lines yield ok=false.
func (f *Formatter) Format(instance string, color lipgloss.Color, line string, stderr bool) (string, bool) {
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	layout := timeLayout
	if f.detailed {
		layout = detailedTimeLayout
	}
	prefix := "[" + f.now().Format(layout) + "] [" + instance + "]"
	prefix = f.r.NewStyle().Foreground(color).Render(prefix)

	var extra []Span
	if f.detailed {
		line, extra = annotate(line)
	}
	spans := Spans(line, extra...)
	var body string
	if stderr {
		body = f.styles.Highlight(line, spans, &f.styles.Stderr)
	} else {
		body = f.styles.Highlight(line, spans, nil)
	}
	return prefix + " " + body, true
}
