package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/daryaKuto/glowrange/internal/history"
	"github.com/daryaKuto/glowrange/internal/models"
)

// FormatSummary formats a finished session record as a FormattedEvent.
func FormatSummary(rec *models.SessionRecord) FormattedEvent {
	var bodyLines []string
	bodyLines = append(bodyLines, fmt.Sprintf("**Duration**: %s", formatDuration(time.Duration(rec.DurationSeconds)*time.Second)))
	bodyLines = append(bodyLines, fmt.Sprintf("**Hits**: %d", rec.TotalHits))
	if rec.AvgHitInterval > 0 {
		bodyLines = append(bodyLines, fmt.Sprintf("**Avg Split**: %.2fs", rec.AvgHitInterval))
	}
	if rec.TransitionCount > 0 {
		bodyLines = append(bodyLines, fmt.Sprintf("**Transitions**: %d (avg %.2fs)", rec.TransitionCount, rec.AvgTransition))
	}
	if rec.Score > 0 {
		bodyLines = append(bodyLines, fmt.Sprintf("**Score**: %.1f", rec.Score))
	}

	if len(rec.DeviceStats) > 0 {
		bodyLines = append(bodyLines, "")
		bodyLines = append(bodyLines, "**Per Target**:")
		for _, st := range rec.DeviceStats {
			name := st.DeviceName
			if name == "" {
				name = st.DeviceID
			}
			line := fmt.Sprintf("  %s: %d hits", name, st.HitCount)
			if st.AvgInterval > 0 {
				line += fmt.Sprintf(" (avg %.2fs)", st.AvgInterval)
			}
			bodyLines = append(bodyLines, line)
		}
	}

	fields := []Field{
		{Name: "Hits", Value: fmt.Sprintf("%d", rec.TotalHits), Short: true},
		{Name: "Duration", Value: formatDuration(time.Duration(rec.DurationSeconds) * time.Second), Short: true},
	}
	if rec.Score > 0 {
		fields = append(fields, Field{Name: "Score", Value: fmt.Sprintf("%.1f", rec.Score), Short: true})
	}

	return FormattedEvent{
		Title:    fmt.Sprintf("Session %s finished", rec.GameID),
		Body:     strings.Join(bodyLines, "\n"),
		Severity: "success",
		Color:    ColorSuccess,
		Fields:   fields,
	}
}

// FormatWarning formats a degraded-session notice.
func FormatWarning(gameID, msg string) FormattedEvent {
	title := "Session warning"
	if gameID != "" {
		title = fmt.Sprintf("Session %s warning", gameID)
	}
	return FormattedEvent{
		Title:    title,
		Body:     msg,
		Severity: "warning",
		Color:    ColorWarning,
	}
}

// FormatDigest formats a periodic practice report as a FormattedEvent.
func FormatDigest(report *history.RangeReport) FormattedEvent {
	var bodyLines []string
	bodyLines = append(bodyLines, fmt.Sprintf("**Period**: %s to %s",
		report.PeriodStart.Format("Jan 2 15:04"),
		report.PeriodEnd.Format("Jan 2 15:04")))
	bodyLines = append(bodyLines, fmt.Sprintf("**Sessions**: %d", report.Sessions))
	bodyLines = append(bodyLines, fmt.Sprintf("**Hits**: %d", report.TotalHits))
	if report.TotalDuration > 0 {
		bodyLines = append(bodyLines, fmt.Sprintf("**Time on Range**: %s", formatDuration(report.TotalDuration)))
	}
	if report.BestScore > 0 {
		bodyLines = append(bodyLines, fmt.Sprintf("**Best Score**: %.1f", report.BestScore))
	}

	if len(report.TopDevices) > 0 {
		bodyLines = append(bodyLines, "")
		bodyLines = append(bodyLines, "**Top Targets**:")
		for _, d := range report.TopDevices {
			name := d.DeviceName
			if name == "" {
				name = d.DeviceID
			}
			bodyLines = append(bodyLines, fmt.Sprintf("  %s: %d hits", name, d.Hits))
		}
	}

	fields := []Field{
		{Name: "Sessions", Value: fmt.Sprintf("%d", report.Sessions), Short: true},
		{Name: "Hits", Value: fmt.Sprintf("%d", report.TotalHits), Short: true},
	}
	if report.BestScore > 0 {
		fields = append(fields, Field{Name: "Best Score", Value: fmt.Sprintf("%.1f", report.BestScore), Short: true})
	}

	return FormattedEvent{
		Title:    "Practice Digest",
		Body:     strings.Join(bodyLines, "\n"),
		Severity: "info",
		Color:    ColorInfo,
		Fields:   fields,
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
