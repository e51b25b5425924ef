package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nomis52/komandorr/poller"
	"github.com/nomis52/komandorr/tracker"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// column widths: title, subtitle, progress, elapsed, state
var widths = []int{32, 28, 9, 10, 10}

func row(cells ...string) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		w := widths[i]
		parts[i] = lipgloss.NewStyle().Width(w).MaxWidth(w).PaddingRight(1).Render(truncate(c, w-1))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	return d.Truncate(time.Second).String()
}

func renderActive(views []tracker.ActivityView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Active (%d)", len(views))))
	b.WriteString("\n")
	if len(views) == 0 {
		b.WriteString(dimStyle.Render("no active activities"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render(row("TITLE", "SUBTITLE", "PROGRESS", "ELAPSED", "STATE")))
	b.WriteString("\n")
	for _, v := range views {
		elapsed := dimStyle.Render("unknown")
		if v.ElapsedMs != nil {
			elapsed = formatElapsed(time.Duration(*v.ElapsedMs) * time.Millisecond)
		}
		state := okStyle.Render("present")
		switch {
		case v.Completed:
			state = okStyle.Render("complete")
		case !v.Present:
			state = warnStyle.Render("missing")
		}
		b.WriteString(row(titleOf(v.Title, v.ID), v.Subtitle, fmt.Sprintf("%.1f%%", v.Progress), elapsed, state))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRecent(records []tracker.CompletedRecord) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Recently finished (%d)", len(records))))
	b.WriteString("\n")
	if len(records) == 0 {
		b.WriteString(dimStyle.Render("nothing finished recently"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render(row("TITLE", "SUBTITLE", "FINISHED", "ELAPSED", "OUTCOME")))
	b.WriteString("\n")
	for _, r := range records {
		outcome := okStyle.Render("completed")
		if r.Cancelled {
			outcome = errStyle.Render("cancelled")
		}
		b.WriteString(row(titleOf(r.Title, r.ID), r.Subtitle, r.CompletedAt.Local().Format("15:04:05"), formatElapsed(r.Elapsed), outcome))
		b.WriteString("\n")
	}
	return b.String()
}

func renderStatus(st poller.Status) string {
	var b strings.Builder
	b.WriteString(renderActive(st.Active))
	b.WriteString("\n")
	b.WriteString(renderRecent(st.Recent))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %d   %s %d\n",
		headerStyle.Render("concurrent:"), st.ActiveCount,
		headerStyle.Render("peak:"), st.Peak))
	if st.LastError != "" {
		b.WriteString(errStyle.Render("last poll failed: "+st.LastError) + "\n")
	}
	return b.String()
}

func titleOf(title, id string) string {
	if title != "" {
		return title
	}
	return id
}
