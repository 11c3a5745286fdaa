// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package present

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/jllopis/relay/pkg/session"
)

// Theme defines the console colours.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Failure lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default console palette.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Success: lipgloss.Color("#3fb950"),
	Warning: lipgloss.Color("#d29922"),
	Failure: lipgloss.Color("#f85149"),
	Dim:     lipgloss.Color("#6e7681"),
}

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	dim     lipgloss.Style
	box     lipgloss.Style
	colored bool
}

func newStyles(t Theme, colored bool) styles {
	if !colored {
		plain := lipgloss.NewStyle()
		return styles{title: plain, label: plain, ok: plain, warn: plain, fail: plain, dim: plain, box: plain}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		label:   lipgloss.NewStyle().Bold(true),
		ok:      lipgloss.NewStyle().Foreground(t.Success),
		warn:    lipgloss.NewStyle().Foreground(t.Warning),
		fail:    lipgloss.NewStyle().Bold(true).Foreground(t.Failure),
		dim:     lipgloss.NewStyle().Foreground(t.Dim),
		box:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		colored: true,
	}
}

// Console renders progress lines and the final plan for a terminal.
// Colour is only used when the writer is a TTY.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	styles  styles
	printed map[string]int
}

// NewConsole creates a console sink writing to w.
func NewConsole(w io.Writer) *Console {
	return NewConsoleWithTheme(w, DefaultTheme)
}

// NewConsoleWithTheme creates a console sink with custom colours.
func NewConsoleWithTheme(w io.Writer, t Theme) *Console {
	return &Console{
		w:       w,
		styles:  newStyles(t, isTerminal(w)),
		printed: make(map[string]int),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Snapshot prints the stages completed since the previous snapshot of the
// same session, and the failure if the session failed.
func (c *Console) Snapshot(v session.View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := c.printed[v.ID]
	if seen > len(v.Results) {
		// The session was rewound by a modification.
		seen = 0
		fmt.Fprintln(c.w, c.styles.dim.Render(fmt.Sprintf("↻ session %s restarted (modification %d)", short(v.ID), v.Modifications)))
	}
	for _, r := range v.Results[seen:] {
		mark := c.styles.ok.Render("✓")
		if r.Source == session.SourceMock {
			mark = c.styles.warn.Render("✓")
		}
		fmt.Fprintf(c.w, "%s %s %s\n", mark, c.styles.label.Render(r.Stage), c.styles.dim.Render(sourceNote(r)))
	}
	c.printed[v.ID] = len(v.Results)

	if v.Status == session.StatusFailed {
		fmt.Fprintf(c.w, "%s %s %s\n",
			c.styles.fail.Render("✗"),
			c.styles.label.Render(v.FailedStage),
			c.styles.fail.Render(v.LastError))
		if v.LastStage != "" {
			fmt.Fprintln(c.w, c.styles.dim.Render("  last successful stage: "+v.LastStage))
		}
	}
}

func sourceNote(r session.AgentResult) string {
	note := "(" + string(r.Source)
	if r.Attempts > 1 {
		note += fmt.Sprintf(", %d attempts", r.Attempts)
	}
	return note + ")"
}

// Plan prints the composite plan.
func (c *Console) Plan(p session.CompositePlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, renderPlan(p, c.styles))
}

// RenderPlanText formats a plan as plain text.
func RenderPlanText(p session.CompositePlan) string {
	return renderPlan(p, newStyles(DefaultTheme, false))
}

func renderPlan(p session.CompositePlan, s styles) string {
	var b strings.Builder
	b.WriteString(s.title.Render(fmt.Sprintf("%s plan %s", strings.ToUpper(string(p.Domain)), short(p.SessionID))))
	b.WriteString("\n")
	if p.Summary != "" {
		b.WriteString(p.Summary)
		b.WriteString("\n")
	}
	for _, sp := range p.Stages {
		b.WriteString("\n")
		b.WriteString(s.label.Render(sp.Stage))
		b.WriteString(" ")
		b.WriteString(s.dim.Render("[" + string(sp.Source) + "]"))
		b.WriteString("\n")
		for _, line := range payloadLines(sp.Payload) {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if p.MockSourced() {
		b.WriteString("\n")
		b.WriteString(s.warn.Render("Some stages used offline data because the model was unavailable."))
	}
	out := strings.TrimRight(b.String(), "\n")
	if s.colored {
		return s.box.Render(out)
	}
	return out
}

// payloadLines lists the scalar fields of a payload, sorted by key.
// Nested values are summarized by their size.
func payloadLines(p session.Payload) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := p[k].(type) {
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				lines = append(lines, fmt.Sprintf("%s: %s", k, name))
			} else {
				lines = append(lines, fmt.Sprintf("%s: {%d fields}", k, len(v)))
			}
		case []any:
			lines = append(lines, fmt.Sprintf("%s: %s", k, listSummary(v)))
		case float64:
			lines = append(lines, fmt.Sprintf("%s: %s", k, formatNumber(v)))
		case nil:
		default:
			lines = append(lines, fmt.Sprintf("%s: %v", k, truncate(fmt.Sprint(v), 120)))
		}
	}
	return lines
}

func listSummary(l []any) string {
	var names []string
	for _, item := range l {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if n, ok := v["name"].(string); ok {
				names = append(names, n)
			} else if n, ok := v["title"].(string); ok {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("[%d items]", len(l))
	}
	if len(names) > 4 {
		names = append(names[:4], fmt.Sprintf("+%d more", len(l)-4))
	}
	return strings.Join(names, ", ")
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RenderResultText formats a single agent result as plain text.
func RenderResultText(r session.AgentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.Stage, sourceNote(r))
	if !r.Success {
		fmt.Fprintf(&b, "  error: %s\n", r.Error)
	}
	for _, line := range payloadLines(r.Payload) {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
