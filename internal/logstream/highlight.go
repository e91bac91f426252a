package logstream

import (
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Category names one kind of highlighted token.
type Category int

const (
	Running Category = iota
	Success
	Failure
	JobClass
	QueueName
	Memory
	Duration
	JobID
)

type rule struct {
	cat   Category
	re    *regexp.Regexp
	group int // submatch to style; 0 is the whole match
}

// Rules in priority order: where matches overlap the earlier category wins.
var rules = []rule{
	{Running, regexp.MustCompile(`\b(Processing|RUNNING)\b`), 1},
	{Success, regexp.MustCompile(`\b(Processed|DONE|SUCCESS|successful|completed|finished)\b`), 1},
	{Failure, regexp.MustCompile(`\b(Failed|FAILED|ERROR|exception|error)\b`), 1},
	{JobClass, regexp.MustCompile(`\\([A-Z][a-zA-Z0-9_]*Job)\b`), 1},
	{QueueName, regexp.MustCompile(`\[([a-z_-]+)\]`), 1},
	{Memory, regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:MB|KB|GB)\b`), 0},
	{Duration, regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:ms|seconds?|s)\b`), 0},
}

// Span is a styled byte range of a line.
type Span struct {
	Start, End int
	Cat        Category
}

// Spans finds the highlighted ranges of line, sorted and non-overlapping.
// extra spans are placed before any rule match.
func Spans(line string, extra ...Span) []Span {
	var out []Span
	overlaps := func(s Span) bool {
		for _, o := range out {
			if s.Start < o.End && o.Start < s.End {
				return true
			}
		}
		return false
	}
	for _, s := range extra {
		if s.Start < s.End && !overlaps(s) {
			out = append(out, s)
		}
	}
	for _, r := range rules {
		for _, m := range r.re.FindAllStringSubmatchIndex(line, -1) {
			s := Span{Start: m[2*r.group], End: m[2*r.group+1], Cat: r.cat}
			if s.Start < 0 || s.Start == s.End || overlaps(s) {
				continue
			}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Styles maps categories to lipgloss styles for one renderer.
type Styles struct {
	cats   map[Category]lipgloss.Style
	Stderr lipgloss.Style
}

// NewStyles builds the highlight styles bound to r.
func NewStyles(r *lipgloss.Renderer) Styles {
	base := r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	return Styles{
		cats: map[Category]lipgloss.Style{
			Running:   base.Foreground(lipgloss.Color("3")).Bold(true),
			Success:   base.Foreground(lipgloss.Color("2")).Bold(true),
			Failure:   base.Foreground(lipgloss.Color("1")).Bold(true),
			JobClass:  base.Foreground(lipgloss.Color("6")),
			QueueName: base.Foreground(lipgloss.Color("5")),
			Memory:    base.Foreground(lipgloss.Color("4")),
			Duration:  base.Foreground(lipgloss.Color("3")),
			JobID:     base.Foreground(lipgloss.Color("4")),
		},
		Stderr: base.Foreground(lipgloss.Color("1")),
	}
}

// Highlight renders line with its spans styled. When plain is non-nil the
// text between spans is rendered with it.
func (st Styles) Highlight(line string, spans []Span, plain *lipgloss.Style) string {
	var b strings.Builder
	pos := 0
	emit := func(s string) {
		if s == "" {
			return
		}
		if plain != nil {
			b.WriteString(plain.Render(s))
			return
		}
		b.WriteString(s)
	}
	for _, s := range spans {
		emit(line[pos:s.Start])
		b.WriteString(st.cats[s.Cat].Render(line[s.Start:s.End]))
		pos = s.End
	}
	emit(line[pos:])
	return b.String()
}
