package types

import "time"

// Role is the coarse-grained permission group of an account.
type Role string

const (
	// RoleBookRecommender may create, edit and delete books.
	RoleBookRecommender Role = "BookRecommender"
	// RoleBookReader may only browse books.
	RoleBookReader Role = "BookReader"
)

// Roles lists every accepted role value.
var Roles = []Role{RoleBookRecommender, RoleBookReader}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBookRecommender, RoleBookReader:
		return true
	default:
		return false
	}
}

// User represents an account in the system.
// It contains identity, role, password-reset state and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the login identifier. It is unique across accounts
	// and compared exactly.
	Email string `json:"email" db:"email"`

	// Username is the display name. It is not required to be unique.
	Username string `json:"username" db:"username"`

	// MobileNumber is the contact number, normalized to E.164 when parseable.
	MobileNumber string `json:"mobileNumber" db:"mobile_number"`

	// Role indicates the user's authorization group.
	Role Role `json:"userRole" db:"user_role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ResetOTP is the one-time password of an in-flight password reset.
	// It is nil when no reset is active.
	ResetOTP *string `json:"-" db:"reset_otp"`

	// OTPExpiryTime is set together with ResetOTP.
	OTPExpiryTime *time.Time `json:"-" db:"otp_expiry_time"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasActiveReset reports whether an OTP has been issued and not yet consumed.
func (u User) HasActiveReset() bool {
	return u.ResetOTP != nil && u.OTPExpiryTime != nil
}

// ClearReset drops the OTP state after a successful reset.
func (u *User) ClearReset() {
	u.ResetOTP = nil
	u.OTPExpiryTime = nil
}
