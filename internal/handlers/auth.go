package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/venuely/apiserver/internal/metrics"
	"github.com/venuely/apiserver/internal/services"
	"github.com/venuely/apiserver/internal/tokens"
	"github.com/venuely/apiserver/types"
)

const (
	msgRegistered = "registration successful, check your email for a verification code"
	msgResent     = "a new verification code has been sent"
)

// AuthHandler provides the credential and verification endpoints.
type AuthHandler struct {
	userService  *services.UserService
	verification *services.VerificationService
	issuer       *tokens.Issuer
	metrics      metrics.Recorder
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	userService *services.UserService,
	verification *services.VerificationService,
	issuer *tokens.Issuer,
	recorder metrics.Recorder,
) *AuthHandler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AuthHandler{
		userService:  userService,
		verification: verification,
		issuer:       issuer,
		metrics:      recorder,
	}
}

// AuthRouter registers auth routes on the given router. Credential
// endpoints go through limit when it is non-nil.
func AuthRouter(r chi.Router, handler *AuthHandler, authMiddleware, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
		r.Post("/verify-otp", handler.VerifyOTP)
		r.Post("/resend-otp", handler.ResendOTP)
	})
	r.With(authMiddleware).Get("/me", handler.Me)
}

// Register creates an unverified account and sends a passcode. No session
// is created until the passcode is confirmed.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "failed to create user")
		return
	}

	message := msgRegistered
	if err := h.verification.Issue(r.Context(), user); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("user_id", user.ID).Msg("failed to issue verification code")
		message = "registration successful, but the verification code could not be sent; request a new one"
	}

	writeJSON(w, http.StatusCreated, types.RegisterResponse{
		Success: true,
		Message: message,
		Email:   user.Email,
	})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordLogin("failure")
		writeServiceError(w, r, err, "failed to authenticate")
		return
	}
	h.metrics.RecordLogin("success")

	h.writeSession(w, user)
}

// VerifyOTP confirms a passcode and opens the deferred session.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.verification.Confirm(r.Context(), req.Email, req.Code)
	if err != nil {
		h.metrics.RecordVerification(verificationOutcome(err))
		writeServiceError(w, r, err, "failed to verify email")
		return
	}
	h.metrics.RecordVerification("success")

	h.writeSession(w, user)
}

// ResendOTP replaces the pending passcode for an unverified address.
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req types.ResendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.verification.Resend(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err, "failed to send verification code")
		return
	}

	writeJSON(w, http.StatusOK, types.RegisterResponse{
		Success: true,
		Message: msgResent,
		Email:   req.Email,
	})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, user types.User) {
	token, err := h.issuer.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, http.StatusOK, types.AuthResponse{User: user.Profile(), Token: token})
}

func verificationOutcome(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, services.ErrCodeExpired):
		return "expired"
	case errors.Is(err, services.ErrTooManyAttempts):
		return "locked"
	default:
		return "error"
	}
}
