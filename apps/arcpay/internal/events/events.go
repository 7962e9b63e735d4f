package events

import (
	"time"

	"arcpay/apps/arcpay/internal/model"
)

const (
	ExecutionCreated   = "execution_created"
	ExecutionSucceeded = "execution_succeeded"
	ExecutionFailed    = "execution_failed"
)

type ExecutionEvent struct {
	EventType           string     `json:"event_type"`
	ExecutionID         string     `json:"execution_id"`
	Owner               string     `json:"owner"`
	RecurringTransferID *string    `json:"recurring_transfer_id,omitempty"`
	Status              string     `json:"status"`
	Recipient           string     `json:"recipient"`
	Amount              string     `json:"amount"`
	Fee                 *string    `json:"fee,omitempty"`
	SourceChain         *string    `json:"source_chain,omitempty"`
	DestinationChain    string     `json:"destination_chain"`
	ReleaseTxHash       *string    `json:"release_tx_hash,omitempty"`
	BurnTxHash          *string    `json:"burn_tx_hash,omitempty"`
	MintTxHash          *string    `json:"mint_tx_hash,omitempty"`
	TxHash              *string    `json:"tx_hash,omitempty"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
}

// TypeFor maps an execution status to the event announcing it
func TypeFor(status model.ExecutionStatus) string {
	switch status {
	case model.ExecutionSuccess:
		return ExecutionSucceeded
	case model.ExecutionFailed:
		return ExecutionFailed
	}
	return ExecutionCreated
}

func NewExecutionEvent(e *model.TransferExecution) ExecutionEvent {
	return ExecutionEvent{
		EventType:           TypeFor(e.Status),
		ExecutionID:         e.ID,
		Owner:               e.Owner,
		RecurringTransferID: e.RecurringTransferID,
		Status:              string(e.Status),
		Recipient:           e.Recipient,
		Amount:              e.Amount,
		Fee:                 e.Fee,
		SourceChain:         e.SourceChain,
		DestinationChain:    e.DestinationChain,
		ReleaseTxHash:       e.ReleaseTxHash,
		BurnTxHash:          e.BurnTxHash,
		MintTxHash:          e.MintTxHash,
		TxHash:              e.TxHash,
		ErrorMessage:        e.ErrorMessage,
		CreatedAt:           e.CreatedAt,
		CompletedAt:         e.CompletedAt,
		Timestamp:           e.UpdatedAt,
	}
}
