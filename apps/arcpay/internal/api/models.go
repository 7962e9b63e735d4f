package api

import (
	"time"

	"arcpay/apps/arcpay/internal/model"
)

// RelayAttestation is a message already signed by the attestation service
type RelayAttestation struct {
	Message     string `json:"message"`
	Attestation string `json:"attestation"`
}

// RelayRequest represents the request body for submitting a mint
type RelayRequest struct {
	BurnTxHash       string            `json:"burnTxHash"`
	DestinationChain string            `json:"destinationChain"`
	SourceChain      string            `json:"sourceChain,omitempty"`
	Attestation      *RelayAttestation `json:"attestation,omitempty"`
	Owner            string            `json:"owner,omitempty"`
}

// RelayResponse represents a successful mint
type RelayResponse struct {
	Success     bool   `json:"success"`
	MintTxHash  string `json:"mintTxHash"`
	BlockNumber uint64 `json:"blockNumber"`
	ExecutionID string `json:"executionId"`
}

// ExecutionResponse represents one ledger entry
type ExecutionResponse struct {
	ID                  string     `json:"id"`
	Owner               string     `json:"owner"`
	RecurringTransferID *string    `json:"recurringTransferId,omitempty"`
	Recipient           string     `json:"recipient"`
	Amount              string     `json:"amount"`
	Fee                 *string    `json:"fee,omitempty"`
	SourceChain         *string    `json:"sourceChain,omitempty"`
	DestinationChain    string     `json:"destinationChain"`
	Status              string     `json:"status"`
	ReleaseTxHash       *string    `json:"releaseTxHash,omitempty"`
	BurnTxHash          *string    `json:"burnTxHash,omitempty"`
	MintTxHash          *string    `json:"mintTxHash,omitempty"`
	TxHash              *string    `json:"txHash,omitempty"`
	ErrorMessage        *string    `json:"errorMessage,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

func newExecutionResponse(e *model.TransferExecution) ExecutionResponse {
	return ExecutionResponse{
		ID:                  e.ID,
		Owner:               e.Owner,
		RecurringTransferID: e.RecurringTransferID,
		Recipient:           e.Recipient,
		Amount:              e.Amount,
		Fee:                 e.Fee,
		SourceChain:         e.SourceChain,
		DestinationChain:    e.DestinationChain,
		Status:              string(e.Status),
		ReleaseTxHash:       e.ReleaseTxHash,
		BurnTxHash:          e.BurnTxHash,
		MintTxHash:          e.MintTxHash,
		TxHash:              e.TxHash,
		ErrorMessage:        e.ErrorMessage,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
		CompletedAt:         e.CompletedAt,
	}
}

// ExecutionListResponse represents the API response for an owner's executions
type ExecutionListResponse struct {
	Executions []ExecutionResponse `json:"executions"`
}

// ChainInfo describes one configured chain
type ChainInfo struct {
	Key                string `json:"key"`
	Name               string `json:"name"`
	ChainID            int64  `json:"chainId"`
	Domain             uint32 `json:"domain"`
	Token              string `json:"token"`
	TokenMessenger     string `json:"tokenMessenger"`
	MessageTransmitter string `json:"messageTransmitter"`
	ExplorerURL        string `json:"explorerUrl"`
}

// InfoResponse represents the API response for relayer information
type InfoResponse struct {
	RelayerAddress string      `json:"relayerAddress"`
	SourceChain    string      `json:"sourceChain"`
	Chains         []ChainInfo `json:"chains"`
}

// HealthResponse includes when the scheduler last ticked
type HealthResponse struct {
	Status            string     `json:"status"`
	Time              time.Time  `json:"time"`
	LastSchedulerTick *time.Time `json:"lastSchedulerTick,omitempty"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Message     string `json:"message"`
	ExecutionID string `json:"executionId,omitempty"`
}
