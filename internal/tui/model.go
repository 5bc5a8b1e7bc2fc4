package tui

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"guardian/internal/progress"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

const (
	maxActiveRows = 8
	maxEventLines = 12
)

var spinnerFrames = []string{"-", "\\", "|", "/"}

type fileState struct {
	Path         string
	Status       string
	FindingCount int
	DurationMS   int64
	StartedAt    time.Time
}

type eventLine struct {
	Severity string
	Text     string
}

type eventMsg struct {
	event progress.Event
	ok    bool
}

type tickMsg time.Time

type uiModel struct {
	events <-chan progress.Event

	runID      string
	runStatus  string
	runError   string
	startedAt  time.Time
	finishedAt time.Time
	totalFiles int
	finished   int
	findings   int
	warnings   int

	showDetails bool
	done        bool
	noColor     bool

	files    map[string]fileState
	logLines []eventLine
	tick     int
}

func newModel(events <-chan progress.Event) uiModel {
	return uiModel{
		events:      events,
		runStatus:   "running",
		files:       make(map[string]fileState),
		showDetails: true,
		noColor:     noColorEnabled(),
		logLines:    make([]eventLine, 0, maxEventLines),
	}
}

func waitForEvent(ch <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return eventMsg{event: ev, ok: ok}
	}
}

func nextTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), nextTick())
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "d":
			m.showDetails = !m.showDetails
		case "q", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
		}
		return m, nil
	case eventMsg:
		if !msg.ok {
			m.done = true
			return m, tea.Quit
		}
		m.applyEvent(msg.event)
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, nextTick()
	default:
		return m, nil
	}
}

func (m uiModel) View() string {
	var b strings.Builder

	b.WriteString(m.render(titleStyle, "Guardian Scan"))
	b.WriteString("\n")
	if m.runStatus == "running" {
		fmt.Fprintf(&b, "Active: %s\n", m.render(runningStyle, frame(m.tick)))
	}
	fmt.Fprintf(&b, "Run: %s\n", valueOrDash(m.runID))
	fmt.Fprintf(&b, "Status: %s\n", m.render(styleStatus(m.runStatus), strings.ToUpper(valueOrDash(m.runStatus))))
	fmt.Fprintf(&b, "Files: %s\n", m.fileProgress())
	fmt.Fprintf(&b, "Findings: %d\n", m.findings)
	if m.warnings > 0 {
		fmt.Fprintf(&b, "Warnings: %s\n", m.render(warnStyle, fmt.Sprint(m.warnings)))
	}
	fmt.Fprintf(&b, "Elapsed: %s\n", m.elapsedString())
	b.WriteString("\n")

	active := m.activeFiles()
	if len(active) > 0 {
		b.WriteString(m.render(headerStyle, fmt.Sprintf("%-48s %-12s", "File", "Elapsed")))
		b.WriteString("\n")
		for idx, f := range active {
			line := fmt.Sprintf("%-48s %-12s", shorten(f.Path, 48), "running "+frame(m.tick+idx))
			b.WriteString(m.render(runningStyle, line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.showDetails {
		b.WriteString(m.render(headerStyle, "Recent Events"))
		b.WriteString("\n")
		if len(m.logLines) == 0 {
			b.WriteString(m.render(idleStyle, "No events yet."))
			b.WriteString("\n")
		}
		for _, line := range m.logLines {
			b.WriteString(m.render(styleStatus(line.Severity), line.Text))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString(m.render(helpStyle, "Press q to close"))
	} else {
		b.WriteString(m.render(helpStyle, "d toggle details"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *uiModel) applyEvent(e progress.Event) {
	switch e.Type {
	case progress.EventRunStarted:
		m.runID = e.RunID
		m.runStatus = "running"
		m.totalFiles = e.FileCount
		if !e.At.IsZero() {
			m.startedAt = e.At
		}
		m.appendEventLine(e, "info", fmt.Sprintf("run started files=%d", e.FileCount))
	case progress.EventRunWarning:
		m.warnings++
		m.appendEventLine(e, "warning", "warning: "+firstNonEmpty(e.Message, e.Error))
	case progress.EventFileStarted:
		f := m.files[e.Path]
		f.Path = e.Path
		f.Status = "running"
		f.StartedAt = e.At
		m.files[e.Path] = f
	case progress.EventFileFinished:
		f := m.files[e.Path]
		f.Path = e.Path
		f.Status = firstNonEmpty(e.Status, "scanned")
		f.FindingCount = e.FindingCount
		f.DurationMS = e.DurationMS
		m.files[e.Path] = f
		m.finished++
		m.findings += e.FindingCount
		if e.FindingCount > 0 || f.Status != "scanned" {
			severity := "info"
			if f.Status != "scanned" {
				severity = "warning"
			}
			m.appendEventLine(e, severity, fmt.Sprintf("%s status=%s findings=%d", e.Path, f.Status, e.FindingCount))
		}
	case progress.EventRunFinished:
		m.runStatus = firstNonEmpty(e.Status, "success")
		m.runError = strings.TrimSpace(e.Error)
		m.findings = e.FindingCount
		if !e.At.IsZero() {
			m.finishedAt = e.At
		}
		m.done = true
		text := fmt.Sprintf("run finished status=%s files=%d findings=%d duration=%s", m.runStatus, e.FileCount, e.FindingCount, durationString(e.DurationMS))
		if m.runError != "" {
			text += " error=" + m.runError
		}
		m.appendEventLine(e, m.runStatus, text)
	}
}

// activeFiles lists running files, oldest first, capped for display.
func (m uiModel) activeFiles() []fileState {
	out := make([]fileState, 0, len(m.files))
	for _, f := range m.files {
		if f.Status == "running" {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > maxActiveRows {
		out = out[:maxActiveRows]
	}
	return out
}

func (m uiModel) fileProgress() string {
	if m.totalFiles <= 0 {
		return fmt.Sprintf("%d", m.finished)
	}
	pct := m.finished * 100 / m.totalFiles
	return fmt.Sprintf("%d/%d (%d%%)", m.finished, m.totalFiles, pct)
}

func (m uiModel) elapsedString() string {
	if m.startedAt.IsZero() {
		return "0s"
	}
	end := time.Now().UTC()
	if !m.finishedAt.IsZero() {
		end = m.finishedAt
	}
	return end.Sub(m.startedAt).Round(time.Second).String()
}

func (m *uiModel) appendEventLine(e progress.Event, severity, text string) {
	ts := e.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	m.logLines = append(m.logLines, eventLine{
		Severity: severity,
		Text:     fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), strings.TrimSpace(text)),
	})
	if len(m.logLines) > maxEventLines {
		m.logLines = m.logLines[len(m.logLines)-maxEventLines:]
	}
}

func (m uiModel) render(style lipgloss.Style, text string) string {
	if m.noColor {
		return text
	}
	return style.Render(text)
}

func noColorEnabled() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func frame(n int) string {
	return spinnerFrames[n%len(spinnerFrames)]
}

func shorten(path string, width int) string {
	if len(path) <= width {
		return path
	}
	return "..." + path[len(path)-width+3:]
}

func durationString(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func valueOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func styleStatus(status string) lipgloss.Style {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "info":
		return okStyle
	case "warning", "partial", "cancelled":
		return warnStyle
	case "failed", "error":
		return errorStyle
	case "running":
		return runningStyle
	default:
		return idleStyle
	}
}
