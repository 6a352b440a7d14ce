package model

import "time"

// Execution paths recorded on event-log entries. They identify which part of
// the scheduling machinery actually fired the action.
const (
	PathQueue          = "queue"           // promoted out of the delayed set on time
	PathQueueImmediate = "queue-immediate" // executed inline at submit (target within 1s)
	PathQueueForced    = "queue-forced"    // force-executed by the overdue sweep or stalled reaper
	PathFallback       = "fallback"        // in-process timer backend
	PathDirectSweep    = "direct-sweep"    // minute-granularity wall-clock cross-check
)

// EventLogEntry is one append-only record of an attempted channel action.
// Entries are never mutated or deleted here; downstream consumers use them
// for idempotency auditing.
type EventLogEntry struct {
	ID            int64     `gorm:"autoIncrement;primaryKey"`
	ScheduleID    int64     `gorm:"index;not null"`
	ChannelID     int       `gorm:"not null"`
	Action        string    `gorm:"size:8;not null"`
	Success       bool      `gorm:"not null"`
	Result        string    `gorm:"size:512;not null"`
	ExecutionPath string    `gorm:"size:32;not null"`
	Timestamp     time.Time `gorm:"index;not null"`
}
