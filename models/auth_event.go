package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuthAction represents the kind of authentication event being audited
type AuthAction string

const (
	AuthActionLoginSucceeded AuthAction = "login_succeeded"
	AuthActionLoginFailed    AuthAction = "login_failed"
	AuthActionTokenRefreshed AuthAction = "token_refreshed"
	AuthActionLogout         AuthAction = "logout"
	AuthActionLogoutAll      AuthAction = "logout_all"
	AuthActionForcedLogout   AuthAction = "forced_logout"
	AuthActionOTPRequested   AuthAction = "otp_requested"
	AuthActionOTPVerified    AuthAction = "otp_verified"
	AuthActionOTPFailed      AuthAction = "otp_failed"
)

// AuthEvent is an audit trail entry for the session lifecycle
type AuthEvent struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	PrincipalID *uuid.UUID      `json:"principal_id,omitempty" db:"principal_id"`
	Action      AuthAction      `json:"action" db:"action"`
	SessionID   *uuid.UUID      `json:"session_id,omitempty" db:"session_id"`
	Details     json.RawMessage `json:"details" db:"details"`
	IPAddress   string          `json:"ip_address" db:"ip_address"`
	UserAgent   string          `json:"user_agent" db:"user_agent"`
	RequestID   string          `json:"request_id" db:"request_id"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuthEvent model
func (AuthEvent) TableName() string {
	return "auth_events"
}

// NewAuthEvent creates a new AuthEvent instance
func NewAuthEvent(action AuthAction) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithPrincipal sets the principal ID
func (e *AuthEvent) WithPrincipal(principalID uuid.UUID) *AuthEvent {
	e.PrincipalID = &principalID
	return e
}

// WithSession sets the session ID
func (e *AuthEvent) WithSession(sessionID uuid.UUID) *AuthEvent {
	e.SessionID = &sessionID
	return e
}

// WithDetails sets the details
func (e *AuthEvent) WithDetails(details interface{}) *AuthEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithRequest sets request metadata
func (e *AuthEvent) WithRequest(requestID, ipAddress, userAgent string) *AuthEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}
