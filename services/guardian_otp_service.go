package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/internal/observability"
	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
	"github.com/Poneaswaran/College-Management-System-Backend/utils"
)

const otpDigits = 6

// OTPSender delivers a plaintext code to a guardian's contact
type OTPSender interface {
	Send(ctx context.Context, link models.GuardianLink, code string) error
}

// LoggingOTPSender writes codes to the log instead of delivering them.
// The code itself is only logged when revealCode is set.
type LoggingOTPSender struct {
	logger     *zap.Logger
	revealCode bool
}

// NewLoggingOTPSender creates a LoggingOTPSender
func NewLoggingOTPSender(logger *zap.Logger, revealCode bool) *LoggingOTPSender {
	return &LoggingOTPSender{logger: logger, revealCode: revealCode}
}

// Send implements OTPSender
func (s *LoggingOTPSender) Send(_ context.Context, link models.GuardianLink, code string) error {
	fields := []zap.Field{
		zap.String("student_register_number", link.StudentRegisterNumber),
		zap.String("contact", maskContact(link.Contact)),
	}
	if s.revealCode {
		fields = append(fields, zap.String("code", code))
	}
	s.logger.Info("guardian login code issued", fields...)
	return nil
}

// OTPRequest asks for a code to be sent to a guardian
type OTPRequest struct {
	StudentRegisterNumber string      `json:"studentRegisterNumber" validate:"required,max=64"`
	Contact               string      `json:"contact" validate:"required,max=255"`
	Meta                  RequestMeta `json:"-"`
}

// OTPVerification redeems a code for a session
type OTPVerification struct {
	StudentRegisterNumber string      `json:"studentRegisterNumber" validate:"required,max=64"`
	Contact               string      `json:"contact" validate:"required,max=255"`
	Code                  string      `json:"otp" validate:"required,len=6,numeric"`
	Meta                  RequestMeta `json:"-"`
}

// GuardianOTPService lets a parent sign in with a one-time code bound to a student
type GuardianOTPService struct {
	repos       *repositories.Repositories
	sessions    *SessionService
	sender      OTPSender
	ttl         time.Duration
	maxAttempts int
	logger      *zap.Logger
	opts        options
}

// NewGuardianOTPService creates a new GuardianOTPService
func NewGuardianOTPService(
	repos *repositories.Repositories,
	sessions *SessionService,
	sender OTPSender,
	ttl time.Duration,
	maxAttempts int,
	logger *zap.Logger,
	opts ...Option,
) *GuardianOTPService {
	return &GuardianOTPService{
		repos:       repos,
		sessions:    sessions,
		sender:      sender,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		logger:      logger,
		opts:        buildOptions(opts),
	}
}

// RequestOTP issues a code when the contact belongs to a guardian of the student.
// The result is the same whether or not such a guardian exists.
func (s *GuardianOTPService) RequestOTP(ctx context.Context, req OTPRequest) error {
	req.StudentRegisterNumber = strings.TrimSpace(req.StudentRegisterNumber)
	req.Contact = strings.TrimSpace(req.Contact)
	if err := utils.ValidateStruct(req); err != nil {
		return NewDomainError(ErrorTypeValidation, "student register number and contact are required", err)
	}

	link, err := s.repos.Principals.GetGuardianLink(ctx, req.StudentRegisterNumber, req.Contact)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			observability.SessionEvents.WithLabelValues("otp_request", "no_guardian").Inc()
			s.logger.Info("guardian code requested for unknown contact", zap.String("request_id", req.Meta.RequestID))
			return nil
		}
		return WrapStoreUnavailable("guardian lookup failed", err)
	}

	code, err := generateCode()
	if err != nil {
		return WrapInternal("generate code", err)
	}

	otp := models.NewGuardianOTP(*link, hashCode(code), s.ttl)
	otp.CreatedAt = s.opts.now().UTC()
	otp.ExpiresAt = otp.CreatedAt.Add(s.ttl)
	if err := s.repos.GuardianOTPs.Create(ctx, otp); err != nil {
		return WrapStoreUnavailable("store code", err)
	}

	if err := s.sender.Send(ctx, *link, code); err != nil {
		s.logger.Error("guardian code delivery failed",
			zap.String("guardian_id", link.GuardianID.String()),
			zap.Error(err))
	}

	observability.SessionEvents.WithLabelValues("otp_request", "success").Inc()
	s.opts.events.Record(ctx, s.opts.event(models.AuthActionOTPRequested, req.Meta).WithPrincipal(link.GuardianID))

	return nil
}

// VerifyOTP redeems a code and opens a session for the guardian
func (s *GuardianOTPService) VerifyOTP(ctx context.Context, req OTPVerification) (*LoginResult, error) {
	req.StudentRegisterNumber = strings.TrimSpace(req.StudentRegisterNumber)
	req.Contact = strings.TrimSpace(req.Contact)
	req.Code = strings.TrimSpace(req.Code)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, ErrInvalidCredentials
	}

	otp, err := s.repos.GuardianOTPs.GetLatest(ctx, req.StudentRegisterNumber, req.Contact)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.verifyFailed(ctx, nil, req.Meta, "no_code")
		}
		return nil, WrapStoreUnavailable("load code", err)
	}

	// Every comparison spends an attempt first, so concurrent guesses cannot
	// exceed maxAttempts.
	if _, err := s.repos.GuardianOTPs.ConsumeAttempt(ctx, otp.ID, s.maxAttempts, s.opts.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.verifyFailed(ctx, otp, req.Meta, "unusable")
		}
		return nil, WrapStoreUnavailable("record attempt", err)
	}

	if subtle.ConstantTimeCompare([]byte(hashCode(req.Code)), []byte(otp.CodeHash)) != 1 {
		return nil, s.verifyFailed(ctx, otp, req.Meta, "mismatch")
	}

	if err := s.repos.GuardianOTPs.MarkUsed(ctx, otp.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.verifyFailed(ctx, otp, req.Meta, "already_used")
		}
		return nil, WrapStoreUnavailable("consume code", err)
	}

	result, err := s.sessions.OpenSession(ctx, otp.GuardianID, req.Meta)
	if err != nil {
		if IsInvalidCredentialsError(err) {
			return nil, s.verifyFailed(ctx, otp, req.Meta, "guardian_inactive")
		}
		return nil, err
	}

	observability.SessionEvents.WithLabelValues("otp_verify", "success").Inc()
	s.opts.events.Record(ctx, s.opts.event(models.AuthActionOTPVerified, req.Meta).
		WithPrincipal(otp.GuardianID).
		WithSession(result.Refresh.SessionID).
		WithDetails(map[string]string{"student_register_number": otp.StudentRegisterNumber}))

	return result, nil
}

func (s *GuardianOTPService) verifyFailed(ctx context.Context, otp *models.GuardianOTP, meta RequestMeta, cause string) error {
	observability.SessionEvents.WithLabelValues("otp_verify", "failure").Inc()

	event := s.opts.event(models.AuthActionOTPFailed, meta).WithDetails(map[string]string{"cause": cause})
	if otp != nil {
		event.WithPrincipal(otp.GuardianID)
	}
	s.opts.events.Record(ctx, event)

	return ErrInvalidCredentials
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// maskContact keeps the first and last two characters
func maskContact(contact string) string {
	if len(contact) <= 4 {
		return strings.Repeat("*", len(contact))
	}
	return contact[:2] + strings.Repeat("*", len(contact)-4) + contact[len(contact)-2:]
}
