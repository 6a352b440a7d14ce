package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lighting-control-backend/internal/model"
)

// Store defines the persistence operations the scheduling core consumes.
// Schedule definitions are owned upstream; this layer only reads active rows,
// records when they were last applied, and appends execution events.
type Store interface {
	ListActiveSchedules(ctx context.Context) ([]model.ScheduleDefinition, error)
	UpdateLastApplied(ctx context.Context, scheduleID int64, appliedAt time.Time) error
	AppendEventLog(ctx context.Context, entry *model.EventLogEntry) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for read-only diagnostic handlers.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ListActiveSchedules returns every active schedule definition.
func (s *gormStore) ListActiveSchedules(ctx context.Context) ([]model.ScheduleDefinition, error) {
	var defs []model.ScheduleDefinition
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}
	return defs, nil
}

// UpdateLastApplied records that a schedule's jobs were successfully
// re-submitted at the given time.
func (s *gormStore) UpdateLastApplied(ctx context.Context, scheduleID int64, appliedAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&model.ScheduleDefinition{}).
		Where("id = ?", scheduleID).
		Update("last_applied_at", appliedAt)
	if res.Error != nil {
		return fmt.Errorf("failed to update last_applied_at for schedule %d: %w", scheduleID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule %d not found", scheduleID)
	}
	return nil
}

// AppendEventLog writes one append-only execution record. Entries are never
// updated or deleted here.
func (s *gormStore) AppendEventLog(ctx context.Context, entry *model.EventLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append event log entry: %w", err)
	}
	return nil
}
