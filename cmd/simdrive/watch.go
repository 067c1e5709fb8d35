package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"simdrive/internal/traj"
)

const watchWindow = 120 // thermo samples shown in the sparkline

func watchRun(cmd *cobra.Command, args []string) error {
	p := tea.NewProgram(newWatchModel(args[0]))
	_, err := p.Run()
	return err
}

type tickMsg time.Time

type watchModel struct {
	dir     string
	meta    traj.Meta
	hasMeta bool
	samples []traj.ThermoSample
	cpStep  int64
	hasCp   bool
	stopped bool
	err     error
	width   int
}

func newWatchModel(dir string) watchModel {
	return watchModel{dir: dir, width: 80}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Init() tea.Cmd {
	return tick()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		m.refresh()
		return m, tick()
	}
	return m, nil
}

func (m *watchModel) refresh() {
	if meta, err := traj.LoadMeta(m.dir); err == nil {
		m.meta = meta
		m.hasMeta = true
	}
	if samples, err := traj.LoadThermo(m.dir); err == nil {
		m.samples = samples
	}
	m.hasCp = traj.HasCheckpoint(m.dir)
	if m.hasCp {
		if cp, err := traj.RestoreCheckpoint(m.dir); err == nil {
			m.cpStep = cp.Step
		}
	}
	m.stopped = traj.StopRequested(m.dir)
	m.err = nil
	if !m.hasMeta {
		m.err = fmt.Errorf("waiting for run metadata in %s", m.dir)
	}
}

func (m watchModel) View() string {
	var b strings.Builder

	if m.err != nil {
		b.WriteString(warnStyle.Render(m.err.Error()) + "\n")
		b.WriteString(labelStyle.Render("q") + "quit\n")
		return b.String()
	}

	header := fmt.Sprintf("%s  target=%d dt=%g particles=%d",
		m.dir, m.meta.Steps, m.meta.Dt, m.meta.Particles)
	b.WriteString(valueStyle.Render(header) + "\n")

	if m.hasCp {
		progress := ""
		if m.meta.Steps > 0 {
			progress = fmt.Sprintf(" %.0f%%", 100*float64(m.cpStep)/float64(m.meta.Steps))
		}
		b.WriteString(labelStyle.Render("checkpoint") +
			valueStyle.Render(fmt.Sprintf("step %d%s", m.cpStep, progress)) + "\n")
	}
	if len(m.samples) > 0 {
		last := m.samples[len(m.samples)-1]
		b.WriteString(labelStyle.Render("last sample") +
			valueStyle.Render(fmt.Sprintf("step %d  E=%.4g  T=%.4g",
				last.Step, last.Energy, last.Temperature)) + "\n")

		window := m.samples
		if len(window) > watchWindow {
			window = window[len(window)-watchWindow:]
		}
		energy := make([]float64, len(window))
		for i, s := range window {
			energy[i] = s.Energy
		}
		width := m.width - 12
		if width < 20 {
			width = 20
		}
		if len(energy) > 1 {
			b.WriteString("\n" + asciigraph.Plot(energy,
				asciigraph.Height(8),
				asciigraph.Width(width),
				asciigraph.Caption("total energy"),
			) + "\n")
		}
	} else {
		b.WriteString(labelStyle.Render("thermo") + "no samples yet\n")
	}

	if m.stopped {
		b.WriteString(warnStyle.Render("STOP requested") + "\n")
	}

	b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("242")).
		Render("q: quit") + "\n")
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}
