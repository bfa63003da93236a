package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/venuely/apiserver/internal/services"
	"github.com/venuely/apiserver/internal/store"
	"github.com/venuely/apiserver/types"
)

// UserHandler serves profile, avatar and admin user-management endpoints.
type UserHandler struct {
	userService   *services.UserService
	avatarService *services.AvatarService
}

func NewUserHandler(userService *services.UserService, avatarService *services.AvatarService) *UserHandler {
	return &UserHandler{userService: userService, avatarService: avatarService}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, handler *UserHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/{userID}/avatar", handler.GetAvatar)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Put("/me", handler.UpdateMe)
		r.Put("/me/avatar", handler.UploadAvatar)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", handler.ListUsers)
			r.Get("/{userID}", handler.GetUser)
			r.Patch("/{userID}/role", handler.UpdateRole)
			r.Delete("/{userID}", handler.DeleteUser)
		})
	})
}

// UpdateMe changes the caller's display name.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	current, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req types.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.UpdateName(r.Context(), current.ID, req.Name)
	if err != nil {
		writeServiceError(w, r, err, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

// UploadAvatar stores the raw request body as the caller's avatar.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	current, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if r.ContentLength > services.MaxAvatarSize {
		writeError(w, http.StatusRequestEntityTooLarge, "avatar too large")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, services.MaxAvatarSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "avatar too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read avatar")
		return
	}

	key, err := h.avatarService.Upload(r.Context(), current.ID, bytes.NewReader(data), int64(len(data)), r.Header.Get("Content-Type"))
	if err != nil {
		writeServiceError(w, r, err, "failed to store avatar")
		return
	}
	zerolog.Ctx(r.Context()).Info().Int("user_id", current.ID).Str("key", key).Msg("avatar updated")
	w.WriteHeader(http.StatusNoContent)
}

// GetAvatar streams a user's avatar.
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, contentType, err := h.avatarService.Open(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "failed to load avatar")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Int("user_id", userID).Msg("avatar stream interrupted")
	}
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, total, err := h.userService.List(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, r, err, "failed to list users")
		return
	}

	items := make([]types.UserProfile, 0, len(users))
	for _, user := range users {
		items = append(items, user.Profile())
	}
	writeJSON(w, http.StatusOK, types.UserListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

// UpdateRole changes another user's role. Admins cannot demote themselves.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req types.UpdateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if caller, ok := UserFromContext(r.Context()); ok && caller.ID == userID && !strings.EqualFold(strings.TrimSpace(req.Role), types.RoleAdmin) {
		writeError(w, http.StatusConflict, "cannot change your own role")
		return
	}

	user, err := h.userService.ChangeRole(r.Context(), userID, req.Role)
	if err != nil {
		writeServiceError(w, r, err, "failed to update role")
		return
	}
	zerolog.Ctx(r.Context()).Info().Int("user_id", userID).Str("role", user.Role).Msg("role changed")
	writeJSON(w, http.StatusOK, user.Profile())
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if caller, ok := UserFromContext(r.Context()); ok && caller.ID == userID {
		writeError(w, http.StatusConflict, "cannot delete your own account")
		return
	}

	if err := h.userService.Delete(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeServiceError(w, r, err, "failed to delete user")
		return
	}
	zerolog.Ctx(r.Context()).Info().Int("user_id", userID).Msg("user deleted")
	w.WriteHeader(http.StatusNoContent)
}
