package user

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Known reports whether the role is one of the three portal roles.
// Unknown roles are never an error at routing time; they just fall
// back to the student experience.
func (r Role) Known() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`

	// PasswordHash is empty for invite-pending accounts (no usable
	// password yet; the user sets one through the emailed link).
	PasswordHash string `json:"-"`

	IsActive    bool `json:"isActive"`
	IsStaff     bool `json:"isStaff"`
	IsSuperuser bool `json:"isSuperuser"`

	DateJoined time.Time `json:"dateJoined"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) ShortName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Email
}

func (u User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}

// Role helpers. "admin" is the role axis; it is distinct from the
// IsSuperuser flag (an admin-role user need not be a superuser).

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }

// NormalizeEmail trims surrounding whitespace and lowercases, so that
// lookups and uniqueness are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
