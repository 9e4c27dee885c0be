package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the code of a principal's role. Codes are ordered by privilege.
type Role string

const (
	RoleParent  Role = "PARENT"
	RoleStudent Role = "STUDENT"
	RoleFaculty Role = "FACULTY"
	RoleHOD     Role = "HOD"
	RoleAdmin   Role = "ADMIN"
)

var roleLevels = map[Role]int{
	RoleParent:  1,
	RoleStudent: 2,
	RoleFaculty: 3,
	RoleHOD:     4,
	RoleAdmin:   5,
}

// Level returns the privilege rank of the role. Unknown roles rank 0.
func (r Role) Level() int {
	return roleLevels[r]
}

// IsValid reports whether r is a known role code
func (r Role) IsValid() bool {
	return r.Level() > 0
}

// AtLeast reports whether r ranks at or above min. Unknown roles never qualify.
func (r Role) AtLeast(min Role) bool {
	return r.IsValid() && r.Level() >= min.Level()
}

func (r Role) String() string {
	return string(r)
}

// ParseRole normalises a role code. The second value is false for unknown codes.
func ParseRole(code string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(code)))
	return r, r.IsValid()
}

// Principal is an authenticatable identity: a student, staff member, parent or administrator.
type Principal struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Email          *string    `json:"email,omitempty" db:"email"`
	RegisterNumber *string    `json:"register_number,omitempty" db:"register_number"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	Role           Role       `json:"role" db:"role"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty" db:"department_id"`
	IsStaff        bool       `json:"is_staff" db:"is_staff"`
	IsSuperuser    bool       `json:"is_superuser" db:"is_superuser"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Principal model
func (Principal) TableName() string {
	return "principals"
}

// NewPrincipal creates an active principal with the given role
func NewPrincipal(role Role, passwordHash string) *Principal {
	now := time.Now().UTC()
	return &Principal{
		ID:           uuid.New(),
		PasswordHash: passwordHash,
		Role:         role,
		IsStaff:      role == RoleFaculty || role == RoleHOD || role == RoleAdmin,
		IsSuperuser:  role == RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// WithEmail sets the login email
func (p *Principal) WithEmail(email string) *Principal {
	p.Email = &email
	return p
}

// WithRegisterNumber sets the student register number
func (p *Principal) WithRegisterNumber(number string) *Principal {
	p.RegisterNumber = &number
	return p
}

// IsAdmin is true only for staff superusers.
func (p *Principal) IsAdmin() bool {
	return p.IsStaff && p.IsSuperuser
}

// Identifier returns the email, falling back to the register number.
func (p *Principal) Identifier() string {
	if p.Email != nil && *p.Email != "" {
		return *p.Email
	}
	if p.RegisterNumber != nil {
		return *p.RegisterNumber
	}
	return p.ID.String()
}

// GuardianLink binds a parent principal to the student they may act for.
type GuardianLink struct {
	GuardianID            uuid.UUID `json:"guardian_id" db:"guardian_id"`
	StudentRegisterNumber string    `json:"student_register_number" db:"student_register_number"`
	Relationship          string    `json:"relationship" db:"relationship"`
	Contact               string    `json:"contact" db:"contact"`
}
