package models

import (
	"time"

	"github.com/google/uuid"
)

// GuardianOTP is a one-time login code issued to a parent for a student's account.
// Only the SHA-256 of the code is stored.
type GuardianOTP struct {
	ID                    uuid.UUID `json:"id" db:"id"`
	StudentRegisterNumber string    `json:"student_register_number" db:"student_register_number"`
	GuardianID            uuid.UUID `json:"guardian_id" db:"guardian_id"`
	CodeHash              string    `json:"-" db:"code_hash"`
	Contact               string    `json:"contact" db:"contact"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	ExpiresAt             time.Time `json:"expires_at" db:"expires_at"`
	Used                  bool      `json:"used" db:"used"`
	Attempts              int       `json:"attempts" db:"attempts"`
}

// TableName returns the table name for the GuardianOTP model
func (GuardianOTP) TableName() string {
	return "guardian_login_otps"
}

// NewGuardianOTP creates an unused code valid for ttl
func NewGuardianOTP(link GuardianLink, codeHash string, ttl time.Duration) *GuardianOTP {
	now := time.Now().UTC()
	return &GuardianOTP{
		ID:                    uuid.New(),
		StudentRegisterNumber: link.StudentRegisterNumber,
		GuardianID:            link.GuardianID,
		CodeHash:              codeHash,
		Contact:               link.Contact,
		CreatedAt:             now,
		ExpiresAt:             now.Add(ttl),
	}
}

// Usable reports whether the code can still be tried at now.
func (o *GuardianOTP) Usable(now time.Time, maxAttempts int) bool {
	return !o.Used && o.Attempts < maxAttempts && now.Before(o.ExpiresAt)
}
