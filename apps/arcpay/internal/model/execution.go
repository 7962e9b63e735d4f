package model

import (
	"time"
)

type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// Category filters executions by whether they belong to a recurring transfer
type Category string

const (
	CategoryRecurring Category = "recurring"
	CategoryOneTime   Category = "one_time"
)

type TransferExecution struct {
	ID                  string          `db:"id"`
	Owner               string          `db:"owner"`
	RecurringTransferID *string         `db:"recurring_transfer_id"`
	Recipient           string          `db:"recipient"`
	Amount              string          `db:"amount"`
	Fee                 *string         `db:"fee"`
	SourceChain         *string         `db:"source_chain"`
	DestinationChain    string          `db:"destination_chain"`
	Status              ExecutionStatus `db:"status"`
	ReleaseTxHash       *string         `db:"release_tx_hash"`
	BurnTxHash          *string         `db:"burn_tx_hash"`
	MintTxHash          *string         `db:"mint_tx_hash"`
	TxHash              *string         `db:"tx_hash"`
	ErrorMessage        *string         `db:"error_message"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
	CompletedAt         *time.Time      `db:"completed_at"`
}

// Stranded reports whether funds were burned but never minted, which makes the
// execution resumable by re-polling the attestation with the stored burn hash
func (e *TransferExecution) Stranded() bool {
	return e.BurnTxHash != nil && *e.BurnTxHash != "" && (e.MintTxHash == nil || *e.MintTxHash == "")
}

// UnspentRelease reports a failed execution that drew custody funds into the hot wallet
// but never sent them on. A retry of the same payment must not release again.
func (e *TransferExecution) UnspentRelease() bool {
	return e.Status == ExecutionFailed && e.ReleaseTxHash != nil && *e.ReleaseTxHash != "" && e.BurnTxHash == nil && e.TxHash == nil
}

// ExecutionResult carries the hashes recorded when an execution succeeds
type ExecutionResult struct {
	MintTxHash string
	TxHash     string
}
