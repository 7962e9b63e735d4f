package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/model"
)

type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutboxRepository(db *sql.DB, logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{db: db, logger: logger}
}

// GetUnsentEventsForProcessing claims up to limit unsent events by moving them to
// 'processing'. Rows locked by another publisher are skipped.
func (o *OutboxRepository) GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	// Use a transaction to ensure atomicity
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	// Select and lock unsent events for processing
	rows, err := tx.QueryContext(ctx, `
		SELECT id, execution_id, owner, event_type, execution_status, event_blob, publish_status, created_at
		FROM execution_outbox
		WHERE publish_status = 'unsent'
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.OutboxEvent
	var ids []int64

	for rows.Next() {
		var event model.OutboxEvent
		if err := rows.Scan(&event.ID, &event.ExecutionID, &event.Owner, &event.EventType, &event.ExecutionStatus,
			&event.EventBlob, &event.PublishStatus, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
		ids = append(ids, event.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	// Mark selected events as 'processing' to prevent other publishers from picking them up
	if _, err := tx.ExecContext(ctx, `
		UPDATE execution_outbox
		SET publish_status = 'processing'
		WHERE id = ANY($1) AND publish_status = 'unsent'
	`, pq.Array(ids)); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return events, nil
}

func (o *OutboxRepository) MarkEventAsSent(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE execution_outbox
		SET publish_status = 'sent'
		WHERE id = $1
	`, id)
	return err
}

// MarkEventAsFailed returns a claimed event to 'unsent' so the next cycle retries it
func (o *OutboxRepository) MarkEventAsFailed(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE execution_outbox
		SET publish_status = 'unsent'
		WHERE id = $1 AND publish_status = 'processing'
	`, id)
	return err
}

// ReleaseProcessing returns every event left in 'processing' to 'unsent'. Called on publisher
// startup to recover claims made by a process that died before delivering them.
func (o *OutboxRepository) ReleaseProcessing(ctx context.Context) (int64, error) {
	result, err := o.db.ExecContext(ctx, `
		UPDATE execution_outbox
		SET publish_status = 'unsent'
		WHERE publish_status = 'processing'
	`)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err == nil && n > 0 {
		o.logger.Warn("Released unfinished outbox claims", zap.Int64("count", n))
	}
	return n, err
}
