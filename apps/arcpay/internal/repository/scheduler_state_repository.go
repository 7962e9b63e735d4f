package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

type SchedulerStateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSchedulerStateRepository(db *sql.DB, logger *zap.Logger) *SchedulerStateRepository {
	return &SchedulerStateRepository{db: db, logger: logger}
}

// GetLastTick returns when the scheduler last finished a tick, or nil if it never has
func (s *SchedulerStateRepository) GetLastTick(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT last_tick_at FROM scheduler_state WHERE id = 1
	`).Scan(&last)
	if err == sql.ErrNoRows || (err == nil && !last.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last.Time, nil
}

func (s *SchedulerStateRepository) RecordTick(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduler_state
		SET last_tick_at = $1, updated_at = NOW()
		WHERE id = 1
	`, at)
	return err
}
