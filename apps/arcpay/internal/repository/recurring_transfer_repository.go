package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/model"
)

const recurringColumns = `id, owner, custody_wallet, recipient, amount, cadence, destination_chain, status,
	next_due_at, last_executed_at, created_at, updated_at`

type RecurringTransferRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRecurringTransferRepository(db *sql.DB, logger *zap.Logger) *RecurringTransferRepository {
	return &RecurringTransferRepository{db: db, logger: logger}
}

func (r *RecurringTransferRepository) Create(ctx context.Context, t *model.RecurringTransfer) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.RecurringActive
	}

	stored, err := scanRecurring(r.db.QueryRowContext(ctx, `
		INSERT INTO recurring_transfers (id, owner, custody_wallet, recipient, amount, cadence, destination_chain, status, next_due_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+recurringColumns,
		t.ID, t.Owner, t.CustodyWallet, t.Recipient, t.Amount, t.Cadence, t.DestinationChain, t.Status, t.NextDueAt))
	if err != nil {
		return fmt.Errorf("failed to create recurring transfer: %w", err)
	}
	*t = *stored

	r.logger.Info("Created recurring transfer", zap.String("id", t.ID), zap.String("owner", t.Owner), zap.String("cadence", string(t.Cadence)))
	return nil
}

func (r *RecurringTransferRepository) Get(ctx context.Context, id string) (*model.RecurringTransfer, error) {
	t, err := scanRecurring(r.db.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_transfers WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring transfer: %w", err)
	}
	return t, nil
}

// ListDue returns active transfers whose next due time is at or before now, earliest first
func (r *RecurringTransferRepository) ListDue(ctx context.Context, now time.Time) ([]model.RecurringTransfer, error) {
	return r.query(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_transfers
		WHERE status = 'active' AND next_due_at <= $1
		ORDER BY next_due_at, id
	`, now)
}

func (r *RecurringTransferRepository) ListByOwner(ctx context.Context, owner string) ([]model.RecurringTransfer, error) {
	return r.query(ctx, `SELECT `+recurringColumns+` FROM recurring_transfers WHERE owner = $1 ORDER BY created_at DESC`, owner)
}

// MarkExecuted records a successful run and the next due time
func (r *RecurringTransferRepository) MarkExecuted(ctx context.Context, id string, executedAt, nextDueAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE recurring_transfers
		SET last_executed_at = $2, next_due_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, executedAt, nextDueAt)
	if err != nil {
		return fmt.Errorf("failed to mark recurring transfer executed: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recurring transfer %s not found", id)
	}

	r.logger.Info("Advanced recurring transfer", zap.String("id", id), zap.Time("next_due_at", nextDueAt))
	return nil
}

func (r *RecurringTransferRepository) SetStatus(ctx context.Context, id string, status model.RecurringStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE recurring_transfers
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update recurring transfer status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recurring transfer %s not found", id)
	}
	return nil
}

func (r *RecurringTransferRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM recurring_transfers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recurring transfer: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recurring transfer %s not found", id)
	}
	return nil
}

func (r *RecurringTransferRepository) query(ctx context.Context, query string, args ...interface{}) ([]model.RecurringTransfer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.RecurringTransfer
	for rows.Next() {
		t, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurring transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

func scanRecurring(row scanner) (*model.RecurringTransfer, error) {
	var t model.RecurringTransfer
	var lastExecuted sql.NullTime

	if err := row.Scan(&t.ID, &t.Owner, &t.CustodyWallet, &t.Recipient, &t.Amount, &t.Cadence, &t.DestinationChain, &t.Status,
		&t.NextDueAt, &lastExecuted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	if lastExecuted.Valid {
		v := lastExecuted.Time
		t.LastExecutedAt = &v
	}
	return &t, nil
}
