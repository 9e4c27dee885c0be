package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/graphql"
	"github.com/Poneaswaran/College-Management-System-Backend/middleware"
	"github.com/Poneaswaran/College-Management-System-Backend/utils"
)

// maxRequestBodyBytes bounds a single GraphQL request body
const maxRequestBodyBytes = 1 << 20

var errRequestBody = errors.New("request body must be a JSON object")

// OperationExecutor runs one GraphQL operation
type OperationExecutor interface {
	Execute(ctx context.Context, req graphql.Request) *graphql.Response
}

// GraphQLHandler serves POST /graphql
type GraphQLHandler struct {
	executor OperationExecutor
	logger   *zap.Logger
}

// NewGraphQLHandler creates a new GraphQLHandler
func NewGraphQLHandler(executor OperationExecutor, logger *zap.Logger) *GraphQLHandler {
	return &GraphQLHandler{
		executor: executor,
		logger:   logger,
	}
}

// HandleGraphQL handles POST /graphql.
// The identity must already be attached by the authentication middleware.
// Responses that carry errors are sent with 400, everything else with 200.
func (h *GraphQLHandler) HandleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "GraphQL requests must use POST", nil)
		return
	}

	var req graphql.Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		h.logger.Debug("undecodable graphql request", zap.Error(err))
		HandleValidationError(w, errRequestBody, h.logger)
		return
	}

	meta := middleware.RequestMeta(r)
	ctx := graphql.WithRequestMeta(r.Context(), meta)

	resp := h.executor.Execute(ctx, req)

	status := http.StatusOK
	if resp.HasErrors() {
		status = http.StatusBadRequest
		h.logger.Debug("graphql operation rejected",
			zap.String("operation", req.OperationName),
			zap.String("code", resp.Errors[0].Extensions.Code),
			zap.String("request_id", meta.RequestID))
	}

	if err := utils.WriteJSON(w, status, resp); err != nil {
		h.logger.Error("failed to write graphql response", zap.Error(err))
	}
}
