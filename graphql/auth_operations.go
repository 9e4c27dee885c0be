package graphql

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Poneaswaran/College-Management-System-Backend/authn"
	"github.com/Poneaswaran/College-Management-System-Backend/authz"
	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/services"
	"github.com/Poneaswaran/College-Management-System-Backend/utils"
)

// UserPayload is the public view of a principal
type UserPayload struct {
	ID             string  `json:"id"`
	Email          *string `json:"email"`
	RegisterNumber *string `json:"registerNumber"`
	Role           string  `json:"role"`
	DepartmentID   *string `json:"departmentId"`
	IsStaff        bool    `json:"isStaff"`
	IsActive       bool    `json:"isActive"`
}

// AuthPayload is returned by every operation that opens a session
type AuthPayload struct {
	AccessToken      string      `json:"accessToken"`
	RefreshToken     string      `json:"refreshToken"`
	AccessExpiresAt  time.Time   `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time   `json:"refreshExpiresAt"`
	User             UserPayload `json:"user"`
}

// RefreshPayload carries a newly minted access token
type RefreshPayload struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// StatusPayload acknowledges a mutation without a richer result
type StatusPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LogoutAllPayload reports how many sessions were ended
type LogoutAllPayload struct {
	Success         bool `json:"success"`
	SessionsRevoked int  `json:"sessionsRevoked"`
}

// SessionPayload describes one live session
type SessionPayload struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	Current   bool      `json:"current"`
}

// AuthEventPayload is one entry of a principal's login history
type AuthEventPayload struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
}

type loginArgs struct {
	Data struct {
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"data"`
}

type refreshArgs struct {
	RefreshToken string `json:"refreshToken"`
}

type otpRequestArgs struct {
	StudentRegisterNumber string `json:"studentRegisterNumber"`
	Contact               string `json:"contact"`
}

type otpVerifyArgs struct {
	StudentRegisterNumber string `json:"studentRegisterNumber"`
	Contact               string `json:"contact"`
	OTP                   string `json:"otp"`
}

// logoutArgs names the token to end. Without one, the caller's own session ends.
type logoutArgs struct {
	Token string `json:"token"`
}

type forceLogoutArgs struct {
	PrincipalID string `json:"principalId"`
}

type historyArgs struct {
	Limit int `json:"limit"`
}

type noArgs struct{}

// AuthOperations resolves the session lifecycle operations
type AuthOperations struct {
	sessions      *services.SessionService
	otps          *services.GuardianOTPService
	logoutCurrent func(ctx context.Context, args logoutArgs) (*StatusPayload, error)
}

// RegisterAuthOperations adds login, token and session operations to registry
func RegisterAuthOperations(registry *Registry, sessions *services.SessionService, otps *services.GuardianOTPService) error {
	a := &AuthOperations{sessions: sessions, otps: otps}
	a.logoutCurrent = authz.Guard(authz.Authenticated(), a.logoutIdentity)

	ops := []Operation{
		{Name: "login", Kind: KindMutation, Capability: authz.Public(), Resolve: Typed(a.login)},
		{Name: "refreshToken", Kind: KindMutation, Capability: authz.Public(), Resolve: Typed(a.refresh)},
		{Name: "requestGuardianOtp", Kind: KindMutation, Capability: authz.Public(), Resolve: Typed(a.requestGuardianOTP)},
		{Name: "verifyGuardianOtp", Kind: KindMutation, Capability: authz.Public(), Resolve: Typed(a.verifyGuardianOTP)},
		{Name: "me", Kind: KindQuery, Capability: authz.Authenticated(), Resolve: Typed(a.me)},
		{Name: "mySessions", Kind: KindQuery, Capability: authz.Authenticated(), Resolve: Typed(a.mySessions)},
		{Name: "myLoginHistory", Kind: KindQuery, Capability: authz.Authenticated(), Resolve: Typed(a.myLoginHistory)},
		// logout accepts an explicit token so an expired session can still be ended
		{Name: "logout", Kind: KindMutation, Capability: authz.Public(), Resolve: Typed(a.logout)},
		{Name: "logoutAll", Kind: KindMutation, Capability: authz.Authenticated(), Resolve: Typed(a.logoutAll)},
		{Name: "forceLogout", Kind: KindMutation, Capability: authz.IsAdmin(), Resolve: Typed(a.forceLogout)},
	}
	for _, op := range ops {
		if err := registry.Register(op); err != nil {
			return err
		}
	}
	return nil
}

func (a *AuthOperations) login(ctx context.Context, args loginArgs) (*AuthPayload, error) {
	result, err := a.sessions.Login(ctx, services.LoginInput{
		Identifier: args.Data.Username,
		Password:   args.Data.Password,
		Meta:       requestMeta(ctx),
	})
	if err != nil {
		return nil, err
	}
	return authPayload(result), nil
}

func (a *AuthOperations) refresh(ctx context.Context, args refreshArgs) (*RefreshPayload, error) {
	result, err := a.sessions.Refresh(ctx, args.RefreshToken, requestMeta(ctx))
	if err != nil {
		return nil, err
	}
	return &RefreshPayload{AccessToken: result.Access.Value, ExpiresAt: result.Access.ExpiresAt}, nil
}

func (a *AuthOperations) requestGuardianOTP(ctx context.Context, args otpRequestArgs) (*StatusPayload, error) {
	err := a.otps.RequestOTP(ctx, services.OTPRequest{
		StudentRegisterNumber: args.StudentRegisterNumber,
		Contact:               args.Contact,
		Meta:                  requestMeta(ctx),
	})
	if err != nil {
		return nil, err
	}
	return &StatusPayload{Success: true, Message: "If the contact is registered for this student, a code has been sent."}, nil
}

func (a *AuthOperations) verifyGuardianOTP(ctx context.Context, args otpVerifyArgs) (*AuthPayload, error) {
	result, err := a.otps.VerifyOTP(ctx, services.OTPVerification{
		StudentRegisterNumber: args.StudentRegisterNumber,
		Contact:               args.Contact,
		Code:                  args.OTP,
		Meta:                  requestMeta(ctx),
	})
	if err != nil {
		return nil, err
	}
	return authPayload(result), nil
}

func (a *AuthOperations) me(ctx context.Context, _ noArgs) (*UserPayload, error) {
	user := userPayload(authn.FromContext(ctx).Principal())
	return &user, nil
}

func (a *AuthOperations) mySessions(ctx context.Context, _ noArgs) ([]SessionPayload, error) {
	identity := authn.FromContext(ctx)
	sessions, err := a.sessions.ListSessions(ctx, identity.Principal().ID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionPayload, len(sessions))
	for i, s := range sessions {
		out[i] = SessionPayload{
			ID:        s.ID.String(),
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			Current:   identity.Claims() != nil && identity.Claims().SessionID == s.ID,
		}
	}
	return out, nil
}

func (a *AuthOperations) myLoginHistory(ctx context.Context, args historyArgs) ([]AuthEventPayload, error) {
	events, err := a.sessions.History(ctx, authn.FromContext(ctx).Principal().ID, args.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]AuthEventPayload, len(events))
	for i, e := range events {
		out[i] = AuthEventPayload{
			Action:    string(e.Action),
			Timestamp: e.Timestamp,
			IPAddress: e.IPAddress,
			UserAgent: e.UserAgent,
		}
	}
	return out, nil
}

func (a *AuthOperations) logout(ctx context.Context, args logoutArgs) (*StatusPayload, error) {
	if args.Token == "" {
		return a.logoutCurrent(ctx, args)
	}
	if err := a.sessions.Logout(ctx, args.Token, requestMeta(ctx)); err != nil {
		return nil, err
	}
	return &StatusPayload{Success: true, Message: "Logged out"}, nil
}

func (a *AuthOperations) logoutIdentity(ctx context.Context, _ logoutArgs) (*StatusPayload, error) {
	if err := a.sessions.LogoutClaims(ctx, authn.FromContext(ctx).Claims(), requestMeta(ctx)); err != nil {
		return nil, err
	}
	return &StatusPayload{Success: true, Message: "Logged out"}, nil
}

func (a *AuthOperations) logoutAll(ctx context.Context, _ noArgs) (*LogoutAllPayload, error) {
	n, err := a.sessions.LogoutAll(ctx, authn.FromContext(ctx).Principal().ID, requestMeta(ctx))
	if err != nil {
		return nil, err
	}
	return &LogoutAllPayload{Success: true, SessionsRevoked: n}, nil
}

func (a *AuthOperations) forceLogout(ctx context.Context, args forceLogoutArgs) (*LogoutAllPayload, error) {
	if err := utils.ValidateUUID(args.PrincipalID); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "principalId must be a UUID", err)
	}
	target := uuid.MustParse(args.PrincipalID)

	n, err := a.sessions.ForceLogout(ctx, target, authn.FromContext(ctx).Principal().ID, requestMeta(ctx))
	if err != nil {
		return nil, err
	}
	return &LogoutAllPayload{Success: true, SessionsRevoked: n}, nil
}

func authPayload(result *services.LoginResult) *AuthPayload {
	return &AuthPayload{
		AccessToken:      result.Access.Value,
		RefreshToken:     result.Refresh.Value,
		AccessExpiresAt:  result.Access.ExpiresAt,
		RefreshExpiresAt: result.Refresh.ExpiresAt,
		User:             userPayload(result.Principal),
	}
}

func userPayload(p *models.Principal) UserPayload {
	user := UserPayload{
		ID:             p.ID.String(),
		Email:          p.Email,
		RegisterNumber: p.RegisterNumber,
		Role:           p.Role.String(),
		IsStaff:        p.IsStaff,
		IsActive:       p.IsActive,
	}
	if p.DepartmentID != nil {
		dept := p.DepartmentID.String()
		user.DepartmentID = &dept
	}
	return user
}
