package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/errs"
)

// statusFor maps an error kind to the HTTP status reported for it
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case errs.KindAttestationTimeout:
		return http.StatusGatewayTimeout
	case errs.KindChainCall:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeJSONResponse writes a JSON response with the specified status code
func writeJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	writeJSONResponse(w, logger, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// writeError reports err with the status of its kind. Errors without a kind are logged and
// reported without detail.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, executionID string) {
	status := statusFor(err)
	resp := ErrorResponse{ExecutionID: executionID}

	if kind := errs.KindOf(err); kind != "" {
		resp.Error = strings.ToLower(string(kind))
		resp.Message = err.Error()
	} else {
		logger.Error("Request failed", zap.String("execution_id", executionID), zap.Error(err))
		resp.Error = "internal_error"
		resp.Message = "Internal server error"
	}

	writeJSONResponse(w, logger, status, resp)
}
