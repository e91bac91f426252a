package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/loykin/nexus/internal/logstream"
	"github.com/loykin/nexus/internal/supervisor"
)

// ui prints short styled status lines.
type ui struct {
	out     io.Writer
	success lipgloss.Style
	err     lipgloss.Style
	warning lipgloss.Style
	info    lipgloss.Style
	subtle  lipgloss.Style
}

func newUI(out io.Writer, noColor bool) *ui {
	r := logstream.NewRenderer(out, noColor)
	return &ui{
		out:     out,
		success: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		info:    r.NewStyle().Foreground(lipgloss.Color("12")),
		subtle:  r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (u *ui) Success(msg string) { _, _ = fmt.Fprintln(u.out, u.success.Render(msg)) }
func (u *ui) Error(msg string)   { _, _ = fmt.Fprintln(u.out, u.err.Render(msg)) }
func (u *ui) Warning(msg string) { _, _ = fmt.Fprintln(u.out, u.warning.Render(msg)) }
func (u *ui) Info(msg string)    { _, _ = fmt.Fprintln(u.out, u.info.Render(msg)) }
func (u *ui) Subtle(msg string)  { _, _ = fmt.Fprintln(u.out, u.subtle.Render(msg)) }

// printStatus renders rows as a table, JSON or YAML.
func printStatus(w io.Writer, rows []supervisor.InstanceInfo, format string, noColor bool) error {
	switch format {
	case "json":
		b, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		_, err := fmt.Fprintln(w, statusTable(w, rows, noColor))
		return err
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func statusTable(w io.Writer, rows []supervisor.InstanceInfo, noColor bool) string {
	r := logstream.NewRenderer(w, noColor)
	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	up := cell.Foreground(lipgloss.Color("2"))
	down := cell.Foreground(lipgloss.Color("1"))

	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		state := "Running"
		if !row.Running {
			state = "Stopped"
		}
		data = append(data, []string{row.Name, strconv.Itoa(row.PID), state, row.Memory, row.Uptime})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers("Worker", "PID", "Status", "Memory", "Uptime").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col == 2 && data[row][2] == "Running":
				return up
			case col == 2:
				return down
			default:
				return cell
			}
		})
	return t.String()
}
