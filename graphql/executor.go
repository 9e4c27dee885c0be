package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/authn"
	"github.com/Poneaswaran/College-Management-System-Backend/authz"
	"github.com/Poneaswaran/College-Management-System-Backend/internal/observability"
	"github.com/Poneaswaran/College-Management-System-Backend/services"
)

// Request is a decoded GraphQL POST body. Query is accepted for client
// compatibility; dispatch uses OperationName only.
type Request struct {
	OperationName string          `json:"operationName"`
	Query         string          `json:"query,omitempty"`
	Variables     json.RawMessage `json:"variables,omitempty"`
}

// Response is the GraphQL result envelope. Data is null whenever Errors is set.
type Response struct {
	Data   map[string]interface{} `json:"data"`
	Errors []*Error               `json:"errors,omitempty"`
}

// HasErrors reports whether the response carries any error
func (r *Response) HasErrors() bool {
	return len(r.Errors) > 0
}

// Executor runs one operation per request behind the authorization gate.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor creates an Executor over registry
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	return &Executor{registry: registry, logger: logger}
}

// Execute dispatches req. The caller's identity is taken from ctx and checked
// against the operation's capability before its resolver is invoked.
func (e *Executor) Execute(ctx context.Context, req Request) *Response {
	op, ok := e.registry.Get(req.OperationName)
	if !ok {
		msg := fmt.Sprintf("Unknown operation %q", req.OperationName)
		if req.OperationName == "" {
			msg = "operationName is required"
		}
		return errorResponse(&Error{
			Message:    msg,
			Extensions: Extensions{Code: CodeOperationNotFound},
		})
	}

	identity := authn.FromContext(ctx)
	if err := authz.Evaluate(identity, op.Capability); err != nil {
		var gateErr *authz.GateError
		result := "denied"
		if errors.As(err, &gateErr) {
			result = string(gateErr.Code)
		}
		observability.GateDecisions.WithLabelValues(op.Name, result).Inc()

		gqlErr, _ := toError(err, op.Name)
		return errorResponse(gqlErr)
	}
	observability.GateDecisions.WithLabelValues(op.Name, "allowed").Inc()

	result, err := e.resolve(ctx, op, req.Variables)
	if err != nil {
		gqlErr, log := toError(err, op.Name)
		if log {
			observability.LoggerFromContext(ctx, e.logger).Error("operation failed",
				zap.String("operation", op.Name),
				zap.Error(err))
		}
		return errorResponse(gqlErr)
	}

	return &Response{Data: map[string]interface{}{op.Name: result}}
}

// resolve runs the resolver, turning a panic into an internal error
func (e *Executor) resolve(ctx context.Context, op Operation, variables json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.WrapInternal("resolver panicked", fmt.Errorf("%v", r))
		}
	}()
	return op.Resolve(ctx, variables)
}

func errorResponse(errs ...*Error) *Response {
	return &Response{Errors: errs}
}

type metaKey struct{}

// WithRequestMeta attaches the caller description used in audit events
func WithRequestMeta(ctx context.Context, meta services.RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func requestMeta(ctx context.Context) services.RequestMeta {
	meta, _ := ctx.Value(metaKey{}).(services.RequestMeta)
	return meta
}
