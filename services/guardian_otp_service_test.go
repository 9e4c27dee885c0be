package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
	"github.com/Poneaswaran/College-Management-System-Backend/tokens"
)

const (
	studentRegNo = "REG2025CSE0042"
	parentPhone  = "+919800000001"
)

func newGuardianFixture(t *testing.T) (*lifecycleFixture, *models.Principal) {
	t.Helper()
	f := newLifecycleFixture(t, nil)
	parent := f.addPrincipal(t, models.RoleParent, "parent@example.com")
	f.store.AddGuardianLink(models.GuardianLink{
		GuardianID:            parent.ID,
		StudentRegisterNumber: studentRegNo,
		Relationship:          "MOTHER",
		Contact:               parentPhone,
	})
	return f, parent
}

func (f *lifecycleFixture) requestCode(t *testing.T) string {
	t.Helper()
	require.NoError(t, f.otps.RequestOTP(context.Background(), OTPRequest{StudentRegisterNumber: studentRegNo, Contact: parentPhone}))
	code := f.sender.last()
	require.Len(t, code, 6)
	return code
}

func (f *lifecycleFixture) verifyCode(code string) (*LoginResult, error) {
	return f.otps.VerifyOTP(context.Background(), OTPVerification{
		StudentRegisterNumber: studentRegNo,
		Contact:               parentPhone,
		Code:                  code,
	})
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestGuardianOTP_RequestAndVerify(t *testing.T) {
	f, parent := newGuardianFixture(t)
	code := f.requestCode(t)

	stored, err := f.repos.GuardianOTPs.GetLatest(context.Background(), studentRegNo, parentPhone)
	require.NoError(t, err)
	assert.NotEqual(t, code, stored.CodeHash)
	assert.Equal(t, hashCode(code), stored.CodeHash)
	assert.True(t, stored.ExpiresAt.Equal(f.clock.Now().Add(5*time.Minute)))

	result, err := f.verifyCode(code)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, result.Principal.ID)

	claims, err := f.codec.Verify(result.Access.Value, tokens.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, models.RoleParent, claims.Role)

	assert.Contains(t, f.sink.actions(), models.AuthActionOTPRequested)
	assert.Contains(t, f.sink.actions(), models.AuthActionOTPVerified)
}

func TestGuardianOTP_UnknownContactStillSucceeds(t *testing.T) {
	f, _ := newGuardianFixture(t)

	err := f.otps.RequestOTP(context.Background(), OTPRequest{StudentRegisterNumber: studentRegNo, Contact: "+910000000000"})
	require.NoError(t, err)
	assert.Empty(t, f.sender.last())

	err = f.otps.RequestOTP(context.Background(), OTPRequest{StudentRegisterNumber: "REG0000", Contact: parentPhone})
	require.NoError(t, err)
	assert.Empty(t, f.sender.last())
}

func TestGuardianOTP_RequestValidation(t *testing.T) {
	f, _ := newGuardianFixture(t)

	err := f.otps.RequestOTP(context.Background(), OTPRequest{StudentRegisterNumber: studentRegNo})
	assert.True(t, IsValidationError(err))
}

func TestGuardianOTP_SingleUse(t *testing.T) {
	f, _ := newGuardianFixture(t)
	code := f.requestCode(t)

	_, err := f.verifyCode(code)
	require.NoError(t, err)

	_, err = f.verifyCode(code)
	assert.True(t, IsInvalidCredentialsError(err))
}

func TestGuardianOTP_Expired(t *testing.T) {
	f, _ := newGuardianFixture(t)
	code := f.requestCode(t)

	f.clock.Advance(5 * time.Minute)
	_, err := f.verifyCode(code)
	assert.True(t, IsInvalidCredentialsError(err))
}

func TestGuardianOTP_AttemptLimit(t *testing.T) {
	f, _ := newGuardianFixture(t)
	code := f.requestCode(t)

	for i := 0; i < 5; i++ {
		_, err := f.verifyCode(wrongCode(code))
		require.True(t, IsInvalidCredentialsError(err))
	}

	_, err := f.verifyCode(code)
	assert.True(t, IsInvalidCredentialsError(err), "correct code after too many attempts")

	stored, err := f.repos.GuardianOTPs.GetLatest(context.Background(), studentRegNo, parentPhone)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Attempts)
}

// lockstepOTPRepo holds every GetLatest caller until all of them have read
// the code, then counts the attempts the store accepted.
type lockstepOTPRepo struct {
	repositories.GuardianOTPRepository
	arrived  sync.WaitGroup
	accepted atomic.Int32
}

func (r *lockstepOTPRepo) GetLatest(ctx context.Context, studentRegisterNumber, contact string) (*models.GuardianOTP, error) {
	otp, err := r.GuardianOTPRepository.GetLatest(ctx, studentRegisterNumber, contact)
	r.arrived.Done()
	r.arrived.Wait()
	return otp, err
}

func (r *lockstepOTPRepo) ConsumeAttempt(ctx context.Context, id uuid.UUID, maxAttempts int, now time.Time) (int, error) {
	n, err := r.GuardianOTPRepository.ConsumeAttempt(ctx, id, maxAttempts, now)
	if err == nil {
		r.accepted.Add(1)
	}
	return n, err
}

func TestGuardianOTP_AttemptLimitUnderConcurrency(t *testing.T) {
	const guesses = 20

	f, _ := newGuardianFixture(t)
	code := f.requestCode(t)

	repo := &lockstepOTPRepo{GuardianOTPRepository: f.repos.GuardianOTPs}
	repo.arrived.Add(guesses)
	f.repos.GuardianOTPs = repo

	var wg sync.WaitGroup
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.verifyCode(wrongCode(code))
			assert.True(t, IsInvalidCredentialsError(err))
		}()
	}
	wg.Wait()
	f.repos.GuardianOTPs = repo.GuardianOTPRepository

	assert.Equal(t, int32(5), repo.accepted.Load())

	stored, err := f.repos.GuardianOTPs.GetLatest(context.Background(), studentRegNo, parentPhone)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Attempts)

	_, err = f.verifyCode(code)
	assert.True(t, IsInvalidCredentialsError(err), "correct code after the cap")
}

func TestGuardianOTP_MalformedCode(t *testing.T) {
	f, _ := newGuardianFixture(t)
	f.requestCode(t)

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, err := f.verifyCode(code)
		assert.True(t, IsInvalidCredentialsError(err), "code %q", code)
	}

	stored, err := f.repos.GuardianOTPs.GetLatest(context.Background(), studentRegNo, parentPhone)
	require.NoError(t, err)
	assert.Zero(t, stored.Attempts)
}

func TestGuardianOTP_NewestCodeWins(t *testing.T) {
	f, _ := newGuardianFixture(t)
	first := f.requestCode(t)
	f.clock.Advance(time.Second)
	second := f.requestCode(t)

	if first != second {
		_, err := f.verifyCode(first)
		assert.True(t, IsInvalidCredentialsError(err))
	}
	_, err := f.verifyCode(second)
	assert.NoError(t, err)
}

func TestGuardianOTP_InactiveGuardian(t *testing.T) {
	f, parent := newGuardianFixture(t)
	code := f.requestCode(t)

	f.store.SetActive(parent.ID, false)
	_, err := f.verifyCode(code)
	assert.True(t, IsInvalidCredentialsError(err))
}

func TestLoggingOTPSender(t *testing.T) {
	link := models.GuardianLink{StudentRegisterNumber: studentRegNo, Contact: parentPhone}

	tests := []struct {
		name   string
		reveal bool
	}{
		{name: "masked", reveal: false},
		{name: "revealed", reveal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			sender := NewLoggingOTPSender(zap.New(core), tt.reveal)

			require.NoError(t, sender.Send(context.Background(), link, "482913"))

			entries := logs.All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, "+9*********01", fields["contact"])
			_, hasCode := fields["code"]
			assert.Equal(t, tt.reveal, hasCode)
		})
	}
}

func TestMaskContact(t *testing.T) {
	assert.Equal(t, "****", maskContact("abcd"))
	assert.Equal(t, "pa**************om", maskContact("parent@example.com"))
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{6}$`, code)
	}
}
