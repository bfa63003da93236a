package types

import "time"

// LoginRequest carries the credentials for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest carries the payload for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// VerifyRequest confirms a one-time passcode.
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResendRequest asks for a fresh one-time passcode.
type ResendRequest struct {
	Email string `json:"email"`
}

// AuthResponse is returned whenever a session is created.
type AuthResponse struct {
	User  UserProfile `json:"user"`
	Token string      `json:"token"`
}

// RegisterResponse acknowledges a registration. No session is created
// until the email address is verified.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Email   string `json:"email"`
}

// VerificationEvent is published when a passcode must be delivered.
type VerificationEvent struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerificationCode is the stored form of a one-time passcode.
type VerificationCode struct {
	Email     string    `db:"email"`
	CodeHash  string    `db:"code_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	Attempts  int       `db:"attempts"`
	CreatedAt time.Time `db:"created_at"`
}

// UserListResponse is the paginated user list payload.
type UserListResponse struct {
	Items []UserProfile `json:"items"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
}

// UpdateProfileRequest updates the caller's own profile.
type UpdateProfileRequest struct {
	Name string `json:"name"`
}

// UpdateRoleRequest changes a user's role.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}
