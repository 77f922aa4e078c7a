// Package report renders a user's summary for the terminal.
package report

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"

	"ridemetrics/internal/analysis"
	"ridemetrics/internal/service"
	"ridemetrics/internal/store"
)

const (
	chartHeight = 10
	chartWidth  = 60
	barWidth    = 30
)

// Render renders the full report of a summary
func Render(s *service.Summary) string {
	sections := []string{
		headerStyle.Render(fmt.Sprintf("ridemetrics · %s", s.User)),
		lipgloss.JoinHorizontal(lipgloss.Top, renderFitness(s), "  ", renderPerformance(s)),
	}

	if chart := renderLoadChart(s.TrainingLoad); chart != "" {
		sections = append(sections, chart)
	}
	if s.Bests != nil {
		sections = append(sections, renderBests(s.Bests))
	}
	if s.Zones != nil {
		sections = append(sections, renderZones(s.Zones))
	}
	sections = append(sections,
		renderRecent(s),
		mutedStyle.Render(fmt.Sprintf("%d activities · generated %s", s.ActivityCount, s.GeneratedAt.Format("2006-01-02 15:04"))),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderFitness(s *service.Summary) string {
	if s.Current == nil {
		return card("Training Load", mutedStyle.Render("No training load yet"))
	}
	c := s.Current
	return card("Training Load",
		renderMetric("Fitness (CTL)", fmt.Sprintf("%.1f", c.CTL)),
		renderMetric("Fatigue (ATL)", fmt.Sprintf("%.1f", c.ATL)),
		renderMetric("Form (TSB)", tsbStyle(c.TSB).Render(fmt.Sprintf("%+.1f", c.TSB))),
		"",
		mutedStyle.Render(s.Form),
	)
}

func renderPerformance(s *service.Summary) string {
	lines := []string{
		renderMetric("FTP", fmt.Sprintf("%.0f W (%.2f W/kg)", s.Settings.FTP, s.Settings.FTP/s.Settings.Weight)),
	}
	if s.CP != nil {
		lines = append(lines,
			renderMetric("Critical Power", fmt.Sprintf("%.0f W", s.CP.CriticalPower)),
			renderMetric("W'", fmt.Sprintf("%s J", humanize.Comma(int64(s.CP.WPrime)))),
		)
	} else {
		lines = append(lines, renderMetric("Critical Power", "-"))
	}
	if s.VO2max != nil {
		lines = append(lines, renderMetric("VO2max", fmt.Sprintf("%.1f ml/kg/min", s.VO2max.Relative)))
	} else {
		lines = append(lines, renderMetric("VO2max", "-"))
	}
	return card("Performance", lines...)
}

// renderLoadChart plots CTL, ATL and TSB. Fewer than three days are not
// worth a chart.
func renderLoadChart(points []analysis.TrainingLoadPoint) string {
	if len(points) < 3 {
		return ""
	}
	ctl := make([]float64, len(points))
	atl := make([]float64, len(points))
	tsb := make([]float64, len(points))
	for i, p := range points {
		ctl[i], atl[i], tsb[i] = p.CTL, p.ATL, p.TSB
	}

	graph := asciigraph.PlotMany([][]float64{ctl, atl, tsb},
		asciigraph.Height(chartHeight),
		asciigraph.Width(chartWidth),
		asciigraph.Precision(0),
		asciigraph.SeriesColors(chartColors...),
	)
	caption := mutedStyle.Render(fmt.Sprintf("CTL (blue) · ATL (red) · TSB (green), last %d days", len(points)))
	return card("Fitness Trend", graph, caption)
}

func renderBests(b *analysis.BestPowers) string {
	var lines []string
	for _, w := range analysis.BestPowerWindows {
		v := b.Get(w.Column)
		if v == nil {
			continue
		}
		lines = append(lines, renderMetric(windowLabel(w.Seconds), fmt.Sprintf("%.0f W", *v)))
	}
	if len(lines) == 0 {
		lines = append(lines, mutedStyle.Render("No power data"))
	}
	return card("Best Power", lines...)
}

func windowLabel(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%d s", seconds)
	}
	return fmt.Sprintf("%d min", seconds/60)
}

func renderZones(z *service.ZoneSummary) string {
	var blocks []string
	if len(z.Power) > 0 {
		blocks = append(blocks, card("Power Zones", zoneLines(z.Power)...))
	}
	if len(z.HR) > 0 {
		blocks = append(blocks, card("Heart Rate Zones", zoneLines(z.HR)...))
	}
	if len(blocks) == 0 {
		return card("Zones", mutedStyle.Render("No zone data"))
	}
	if len(blocks) == 1 {
		return blocks[0]
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, blocks[0], "  ", blocks[1])
}

func zoneLines(d analysis.ZoneDistribution) []string {
	total := d.Total()
	lines := make([]string, 0, len(d))
	for _, z := range d {
		frac := 0.0
		if total > 0 {
			frac = float64(z.Seconds) / float64(total)
		}
		lines = append(lines, fmt.Sprintf("%-4s %s %5.1f%%  %s",
			z.Label, renderBar(frac, barWidth), frac*100, formatDuration(z.Seconds)))
	}
	return lines
}

func renderRecent(s *service.Summary) string {
	if len(s.Recent) == 0 {
		return card("Recent Activities", mutedStyle.Render("No activities yet"))
	}

	rows := []string{tableHeaderStyle.Render(fmt.Sprintf("%-14s  %-22s  %8s  %6s  %6s  %5s  %5s",
		"When", "File", "Time", "Avg W", "NP", "TSS", "HR"))}
	for _, a := range s.Recent {
		rows = append(rows, fmt.Sprintf("%-14s  %-22s  %8s  %6s  %6s  %5s  %5s",
			humanize.RelTime(a.StartTime, s.GeneratedAt, "ago", "from now"),
			truncateName(a.FileName, 22),
			durationOf(a),
			optional(a.AvgPower, "%.0f"),
			optional(a.NormalizedPower, "%.0f"),
			optional(a.TSS, "%.0f"),
			optional(a.AvgHeartRate, "%.0f"),
		))
	}
	return card("Recent Activities", rows...)
}

func durationOf(a store.Activity) string {
	if a.DurationS == nil {
		return "-"
	}
	return formatDuration(*a.DurationS)
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func formatDuration(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm", h, m)
	}
	return fmt.Sprintf("%dm %02ds", m, seconds%60)
}

func truncateName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
