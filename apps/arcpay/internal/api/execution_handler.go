package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/model"
)

type ExecutionReader interface {
	Get(ctx context.Context, id string) (*model.TransferExecution, error)
	List(ctx context.Context, owner string, category *model.Category) ([]model.TransferExecution, error)
}

type Resumer interface {
	Resume(ctx context.Context, executionID string) (*model.TransferExecution, error)
}

// ExecutionHandler serves the execution ledger
type ExecutionHandler struct {
	executions ExecutionReader
	resumer    Resumer
	logger     *zap.Logger
}

func NewExecutionHandler(executions ExecutionReader, resumer Resumer, logger *zap.Logger) *ExecutionHandler {
	return &ExecutionHandler{executions: executions, resumer: resumer, logger: logger}
}

// ListExecutions handles GET /api/executions?owner=&category=
func (h *ExecutionHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "missing_owner", "Owner is required")
		return
	}

	var category *model.Category
	switch c := model.Category(r.URL.Query().Get("category")); c {
	case "":
	case model.CategoryRecurring, model.CategoryOneTime:
		category = &c
	default:
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_category", "Category must be recurring or one_time")
		return
	}

	executions, err := h.executions.List(r.Context(), owner, category)
	if err != nil {
		h.logger.Error("Failed to list executions", zap.String("owner", owner), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "database_error", "Failed to retrieve executions")
		return
	}

	response := ExecutionListResponse{Executions: make([]ExecutionResponse, 0, len(executions))}
	for i := range executions {
		response.Executions = append(response.Executions, newExecutionResponse(&executions[i]))
	}
	writeJSONResponse(w, h.logger, http.StatusOK, response)
}

// GetExecution handles GET /api/executions/{id}
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	execution, err := h.executions.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get execution", zap.String("execution_id", id), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "database_error", "Failed to retrieve execution")
		return
	}
	if execution == nil {
		writeErrorResponse(w, h.logger, http.StatusNotFound, "execution_not_found", "Execution not found")
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, newExecutionResponse(execution))
}

// ResumeExecution handles POST /api/executions/{id}/resume
func (h *ExecutionHandler) ResumeExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	execution, err := h.resumer.Resume(context.WithoutCancel(r.Context()), id)
	if err != nil {
		executionID := id
		if execution != nil {
			executionID = execution.ID
		}
		writeError(w, h.logger, err, executionID)
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, newExecutionResponse(execution))
}
