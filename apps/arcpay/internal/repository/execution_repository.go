package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/events"
	"arcpay/apps/arcpay/internal/model"
)

// ErrAlreadyFinalized is returned when an execution is no longer pending
var ErrAlreadyFinalized = errors.New("execution is not pending")

const executionColumns = `id, owner, recurring_transfer_id, recipient, amount, fee, source_chain, destination_chain,
	status, release_tx_hash, burn_tx_hash, mint_tx_hash, tx_hash, error_message, created_at, updated_at, completed_at`

const defaultListLimit = 100

type ExecutionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewExecutionRepository(db *sql.DB, logger *zap.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts e as a pending execution and assigns its id and timestamps
func (r *ExecutionRepository) Create(ctx context.Context, e *model.TransferExecution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Status = model.ExecutionPending

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO transfer_executions (id, owner, recurring_transfer_id, recipient, amount, fee, source_chain, destination_chain, status, release_tx_hash, burn_tx_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING `+executionColumns,
			e.ID, e.Owner, e.RecurringTransferID, e.Recipient, e.Amount, e.Fee, e.SourceChain, e.DestinationChain, e.Status, e.ReleaseTxHash, e.BurnTxHash)

		stored, err := scanExecution(row)
		if err != nil {
			return err
		}
		*e = *stored

		return storeOutboxEvent(ctx, tx, stored)
	})
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	r.logger.Info("Created execution", zap.String("execution_id", e.ID), zap.String("owner", e.Owner), zap.String("destination_chain", e.DestinationChain))
	return nil
}

// RecordRelease stores the hash of the custody release that funded a pending execution
func (r *ExecutionRepository) RecordRelease(ctx context.Context, id, releaseTxHash string) error {
	if err := r.setHash(ctx, "release_tx_hash", id, releaseTxHash); err != nil {
		return fmt.Errorf("failed to record release: %w", err)
	}

	r.logger.Info("Recorded custody release", zap.String("execution_id", id), zap.String("release_tx_hash", releaseTxHash))
	return nil
}

// RecordBurn stores the burn hash of a pending execution
func (r *ExecutionRepository) RecordBurn(ctx context.Context, id, burnTxHash string) error {
	if err := r.setHash(ctx, "burn_tx_hash", id, burnTxHash); err != nil {
		return fmt.Errorf("failed to record burn: %w", err)
	}

	r.logger.Info("Recorded burn", zap.String("execution_id", id), zap.String("burn_tx_hash", burnTxHash))
	return nil
}

// setHash writes one of the fixed hash columns of a pending execution
func (r *ExecutionRepository) setHash(ctx context.Context, column, id, hash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transfer_executions
		SET `+column+` = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, hash)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// Complete moves a pending execution to success. A second terminal update fails with
// ErrAlreadyFinalized.
func (r *ExecutionRepository) Complete(ctx context.Context, id string, result model.ExecutionResult) (*model.TransferExecution, error) {
	return r.finalize(ctx, `
		UPDATE transfer_executions
		SET status = 'success',
			mint_tx_hash = COALESCE(NULLIF($2::text, ''), mint_tx_hash),
			tx_hash = COALESCE(NULLIF($3::text, ''), tx_hash),
			updated_at = NOW(),
			completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+executionColumns, id, result.MintTxHash, result.TxHash)
}

// Fail moves a pending execution to failed with the given message
func (r *ExecutionRepository) Fail(ctx context.Context, id, message string) (*model.TransferExecution, error) {
	return r.finalize(ctx, `
		UPDATE transfer_executions
		SET status = 'failed',
			error_message = $2,
			updated_at = NOW(),
			completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+executionColumns, id, message)
}

func (r *ExecutionRepository) finalize(ctx context.Context, query string, args ...interface{}) (*model.TransferExecution, error) {
	var stored *model.TransferExecution

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = scanExecution(tx.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlreadyFinalized
		}
		if err != nil {
			return err
		}
		return storeOutboxEvent(ctx, tx, stored)
	})
	if errors.Is(err, ErrAlreadyFinalized) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finalize execution: %w", err)
	}

	r.logger.Info("Finalized execution", zap.String("execution_id", stored.ID), zap.String("status", string(stored.Status)))
	return stored, nil
}

func (r *ExecutionRepository) Get(ctx context.Context, id string) (*model.TransferExecution, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	e, err := scanExecution(r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM transfer_executions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return e, nil
}

// List returns the owner's executions newest first, optionally restricted to one category
func (r *ExecutionRepository) List(ctx context.Context, owner string, category *model.Category) ([]model.TransferExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM transfer_executions WHERE owner = $1`
	if category != nil {
		switch *category {
		case model.CategoryRecurring:
			query += ` AND recurring_transfer_id IS NOT NULL`
		case model.CategoryOneTime:
			query += ` AND recurring_transfer_id IS NULL`
		default:
			return nil, fmt.Errorf("unknown category %q", *category)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	return r.query(ctx, query, owner, defaultListLimit)
}

// LatestForTransfer returns the most recent execution of a recurring transfer
func (r *ExecutionRepository) LatestForTransfer(ctx context.Context, transferID string) (*model.TransferExecution, error) {
	e, err := scanExecution(r.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+`
		FROM transfer_executions
		WHERE recurring_transfer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, transferID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest execution: %w", err)
	}
	return e, nil
}

// ListPending returns executions that never reached a terminal status, oldest first
func (r *ExecutionRepository) ListPending(ctx context.Context) ([]model.TransferExecution, error) {
	return r.query(ctx, `SELECT `+executionColumns+` FROM transfer_executions WHERE status = 'pending' ORDER BY created_at`)
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...interface{}) ([]model.TransferExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var executions []model.TransferExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

func (r *ExecutionRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row scanner) (*model.TransferExecution, error) {
	var e model.TransferExecution
	var recurringID, fee, sourceChain, release, burn, mint, txHash, errMsg sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(&e.ID, &e.Owner, &recurringID, &e.Recipient, &e.Amount, &fee, &sourceChain, &e.DestinationChain,
		&e.Status, &release, &burn, &mint, &txHash, &errMsg, &e.CreatedAt, &e.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}

	e.RecurringTransferID = nullString(recurringID)
	e.Fee = nullString(fee)
	e.SourceChain = nullString(sourceChain)
	e.ReleaseTxHash = nullString(release)
	e.BurnTxHash = nullString(burn)
	e.MintTxHash = nullString(mint)
	e.TxHash = nullString(txHash)
	e.ErrorMessage = nullString(errMsg)
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	return &e, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

func storeOutboxEvent(ctx context.Context, tx *sql.Tx, e *model.TransferExecution) error {
	event := events.NewExecutionEvent(e)
	blob, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal execution event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_outbox (execution_id, owner, event_type, execution_status, event_blob)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.Owner, event.EventType, e.Status, blob)
	if err != nil {
		return fmt.Errorf("failed to store outbox event: %w", err)
	}
	return nil
}
