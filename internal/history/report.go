package history

import (
	"fmt"
	"time"

	"github.com/daryaKuto/glowrange/internal/models"
	"gorm.io/gorm"
)

// RangeReport holds practice metrics for a digest period.
type RangeReport struct {
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Sessions      int
	TotalHits     int64
	TotalDuration time.Duration
	BestScore     float64
	TopDevices    []DeviceActivity
}

// DeviceActivity is the per-device hit total across a period.
type DeviceActivity struct {
	DeviceID   string
	DeviceName string
	Hits       int64
}

// BuildReport aggregates session metrics for the given period.
func BuildReport(db *gorm.DB, since, until time.Time) (*RangeReport, error) {
	report := &RangeReport{PeriodStart: since, PeriodEnd: until}

	var sessions int64
	if err := db.Model(&models.SessionRecord{}).
		Where("started_at >= ? AND started_at < ?", since, until).
		Count(&sessions).Error; err != nil {
		return nil, fmt.Errorf("history: report sessions: %w", err)
	}
	report.Sessions = int(sessions)

	var totals struct {
		Hits     int64
		Duration int64
		Best     float64
	}
	db.Model(&models.SessionRecord{}).
		Where("started_at >= ? AND started_at < ?", since, until).
		Select("COALESCE(SUM(total_hits), 0) as hits, COALESCE(SUM(duration_seconds), 0) as duration, COALESCE(MAX(score), 0) as best").
		Scan(&totals)
	report.TotalHits = totals.Hits
	report.TotalDuration = time.Duration(totals.Duration) * time.Second
	report.BestScore = totals.Best

	// Top devices by hits across the period's sessions.
	var rows []struct {
		DeviceID   string
		DeviceName string
		Hits       int64
	}
	db.Model(&models.SessionDeviceStat{}).
		Joins("JOIN session_records ON session_records.id = session_device_stats.session_id").
		Where("session_records.started_at >= ? AND session_records.started_at < ?", since, until).
		Select("device_id, device_name, SUM(hit_count) as hits").
		Group("device_id, device_name").
		Order("hits DESC").
		Limit(5).
		Scan(&rows)
	for _, r := range rows {
		report.TopDevices = append(report.TopDevices, DeviceActivity{
			DeviceID:   r.DeviceID,
			DeviceName: r.DeviceName,
			Hits:       r.Hits,
		})
	}

	return report, nil
}
