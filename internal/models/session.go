package models

import "time"

// SessionRecord is the persisted summary of one completed practice session.
// It is written exactly once by the summary builder when a session finalizes
// and never mutated afterwards; the history store owns it from then on.
type SessionRecord struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	GameID          string `gorm:"size:32;not null;uniqueIndex"`
	StartedAt       time.Time
	StoppedAt       time.Time
	DurationSeconds int
	TotalHits       int
	AvgHitInterval  float64 // seconds between consecutive hits, session-wide
	TransitionCount int
	AvgTransition   float64 // seconds, across cross-device transitions
	Score           float64
	HitHistory      string `gorm:"type:json"` // JSON array of hit events
	Splits          string `gorm:"type:json"` // JSON array of split records
	Transitions     string `gorm:"type:json"` // JSON array of transition records
	CreatedAt       time.Time
	UpdatedAt       time.Time

	DeviceStats []SessionDeviceStat `gorm:"foreignKey:SessionID"`
}

// SessionDeviceStat holds per-device statistics within one session.
type SessionDeviceStat struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SessionID   uint   `gorm:"not null;index"`
	DeviceID    string `gorm:"size:64;not null;index"`
	DeviceName  string `gorm:"size:128"`
	HitCount    int
	AvgInterval float64 // seconds between consecutive hits on this device
	FirstHitAt  *time.Time
	LastHitAt   *time.Time
}
