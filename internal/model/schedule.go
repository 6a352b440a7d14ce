package model

import "time"

// ScheduleDefinition is a user-configured daily ON/OFF program for one
// lighting channel. The CRUD surface owns creation and editing; this core
// only reads active rows and writes back LastAppliedAt.
type ScheduleDefinition struct {
	ID        int64 `gorm:"primaryKey"`
	ChannelID int   `gorm:"index;not null"`
	OnHour    int   `gorm:"not null"`
	OnMinute  int   `gorm:"not null"`
	OffHour   int   `gorm:"not null"`
	OffMinute int   `gorm:"not null"`
	IsActive  bool  `gorm:"index;not null"`

	// Set after a reconciliation successfully re-submitted this schedule's jobs.
	LastAppliedAt *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ValidTimes reports whether the stored times-of-day are within range.
func (s *ScheduleDefinition) ValidTimes() bool {
	return s.OnHour >= 0 && s.OnHour <= 23 &&
		s.OffHour >= 0 && s.OffHour <= 23 &&
		s.OnMinute >= 0 && s.OnMinute <= 59 &&
		s.OffMinute >= 0 && s.OffMinute <= 59
}
