package services

import "errors"

// Sentinel errors returned by the services. Handlers match them with
// errors.Is and translate them into HTTP statuses.
var (
	// ErrInvalidInput wraps every request validation failure.
	// HTTP Status: 400 Bad Request
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken indicates the email address already has an account.
	// HTTP Status: 409 Conflict
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCode indicates a wrong or unknown verification code.
	// HTTP Status: 400 Bad Request
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrCodeExpired indicates the verification code is past its TTL.
	// HTTP Status: 410 Gone
	ErrCodeExpired = errors.New("verification code expired")

	// ErrTooManyAttempts indicates the code was locked after repeated failures.
	// HTTP Status: 429 Too Many Requests
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// ErrAlreadyVerified indicates the email address is already confirmed.
	// HTTP Status: 409 Conflict
	ErrAlreadyVerified = errors.New("email already verified")

	// ErrStorageDisabled indicates no object storage backend is configured.
	// HTTP Status: 503 Service Unavailable
	ErrStorageDisabled = errors.New("object storage is not configured")

	// ErrNoAvatar indicates the user has not uploaded an avatar.
	// HTTP Status: 404 Not Found
	ErrNoAvatar = errors.New("avatar not found")
)
