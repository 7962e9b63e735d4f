package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/orchestrator"
)

type Relayer interface {
	Relay(ctx context.Context, req orchestrator.RelayRequest) (*orchestrator.RelayResult, error)
}

// RelayHandler submits mints for burns made outside the scheduler, e.g. from a user's wallet
type RelayHandler struct {
	relayer Relayer
	logger  *zap.Logger
}

func NewRelayHandler(relayer Relayer, logger *zap.Logger) *RelayHandler {
	return &RelayHandler{relayer: relayer, logger: logger}
}

// Relay handles POST /api/relay
func (h *RelayHandler) Relay(w http.ResponseWriter, r *http.Request) {
	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	if req.BurnTxHash == "" {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "missing_burn_tx_hash", "Burn transaction hash is required")
		return
	}

	destination, err := chains.ParseKey(req.DestinationChain)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}

	relayReq := orchestrator.RelayRequest{
		BurnTxHash:       req.BurnTxHash,
		DestinationChain: destination,
		Owner:            req.Owner,
	}
	if req.SourceChain != "" {
		source, err := chains.ParseKey(req.SourceChain)
		if err != nil {
			writeError(w, h.logger, err, "")
			return
		}
		relayReq.SourceChain = source
	}
	if req.Attestation != nil {
		relayReq.Message = req.Attestation.Message
		relayReq.Attestation = req.Attestation.Attestation
	}

	// The mint is not abandoned when the client goes away; its outcome is still recorded
	result, err := h.relayer.Relay(context.WithoutCancel(r.Context()), relayReq)
	if err != nil {
		executionID := ""
		if result != nil && result.Execution != nil {
			executionID = result.Execution.ID
		}
		writeError(w, h.logger, err, executionID)
		return
	}

	h.logger.Info("Relayed mint",
		zap.String("execution_id", result.Execution.ID),
		zap.String("burn_tx_hash", req.BurnTxHash),
		zap.String("mint_tx_hash", result.MintTxHash))

	writeJSONResponse(w, h.logger, http.StatusOK, RelayResponse{
		Success:     true,
		MintTxHash:  result.MintTxHash,
		BlockNumber: result.BlockNumber,
		ExecutionID: result.Execution.ID,
	})
}
