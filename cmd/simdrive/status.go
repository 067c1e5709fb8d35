package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"simdrive/internal/traj"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
)

func showStatus(cmd *cobra.Command, args []string) error {
	dir := args[0]

	meta, err := traj.LoadMeta(dir)
	if err != nil {
		return fmt.Errorf("no run metadata in %s: %w", dir, err)
	}

	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	row("output", meta.OutputDir)
	row("started", meta.Started.Format("2006-01-02 15:04:05"))
	row("target", fmt.Sprintf("%d steps", meta.Steps))
	row("dt", fmt.Sprintf("%g", meta.Dt))
	row("particles", fmt.Sprintf("%d", meta.Particles))
	if meta.RMSDTarget > 0 {
		row("rmsd target", fmt.Sprintf("%g", meta.RMSDTarget))
	}
	if meta.WallTime > 0 {
		row("wall limit", fmt.Sprintf("%gs", meta.WallTime))
	}
	row("restart", fmt.Sprintf("%v", meta.Restart))

	if traj.HasCheckpoint(dir) {
		cp, err := traj.RestoreCheckpoint(dir)
		if err != nil {
			return err
		}
		progress := ""
		if meta.Steps > 0 {
			progress = fmt.Sprintf(" (%.0f%%)", 100*float64(cp.Step)/float64(meta.Steps))
		}
		row("checkpoint", fmt.Sprintf("step %d%s", cp.Step, progress))
	} else {
		row("checkpoint", "none")
	}

	out := b.String()
	if traj.StopRequested(dir) {
		out += warnStyle.Render("STOP requested") + "\n"
	}

	fmt.Println(panelStyle.Render(strings.TrimRight(out, "\n")))
	return nil
}
