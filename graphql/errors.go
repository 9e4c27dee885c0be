package graphql

import (
	"errors"

	"github.com/Poneaswaran/College-Management-System-Backend/authn"
	"github.com/Poneaswaran/College-Management-System-Backend/authz"
	"github.com/Poneaswaran/College-Management-System-Backend/services"
)

// Codes for failures that are not gate rejections
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeBadUserInput       = "BAD_USER_INPUT"
	CodeOperationNotFound  = "OPERATION_NOT_FOUND"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

// Error is one entry of the response's errors list
type Error struct {
	Message    string     `json:"message"`
	Path       []string   `json:"path,omitempty"`
	Extensions Extensions `json:"extensions"`
}

// Extensions carries the machine-readable part of an error
type Extensions struct {
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// toError converts resolver and gate failures into envelope errors. The
// second result is true for failures worth logging; their details never
// reach the client.
func toError(err error, path string) (*Error, bool) {
	out := &Error{Path: []string{path}}

	var gateErr *authz.GateError
	if errors.As(err, &gateErr) {
		out.Message = gateErr.Message
		out.Extensions = Extensions{Code: string(gateErr.Code)}
		if gateErr.Reason != authn.ReasonNone {
			out.Extensions.Reason = gateErr.Reason.String()
		}
		return out, false
	}

	switch services.GetErrorType(err) {
	case services.ErrorTypeUnauthenticated:
		return toError(authz.AuthenticationFailure(authn.Reason(services.GetErrorReason(err))), path)
	case services.ErrorTypeInvalidCredentials:
		return toError(authz.InvalidCredentials(), path)
	case services.ErrorTypeForbidden:
		out.Message, out.Extensions.Code = domainMessage(err), string(authz.CodeForbidden)
	case services.ErrorTypeValidation:
		out.Message, out.Extensions.Code = domainMessage(err), CodeBadUserInput
	case services.ErrorTypeNotFound:
		out.Message, out.Extensions.Code = domainMessage(err), CodeNotFound
	case services.ErrorTypeConflict:
		out.Message, out.Extensions.Code = domainMessage(err), CodeConflict
	case services.ErrorTypeRateLimit:
		out.Message, out.Extensions.Code = domainMessage(err), CodeRateLimited
	case services.ErrorTypeStoreUnavailable:
		out.Message, out.Extensions.Code = "Service temporarily unavailable", CodeServiceUnavailable
		return out, true
	default:
		out.Message, out.Extensions.Code = "Internal server error", CodeInternal
		return out, true
	}
	return out, false
}

func domainMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
