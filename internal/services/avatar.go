package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/venuely/apiserver/internal/storage"
)

// MaxAvatarSize bounds uploaded avatar payloads.
const MaxAvatarSize = 2 << 20

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStore is the subset of storage.Storage used for avatars.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// AvatarService stores profile pictures in object storage.
type AvatarService struct {
	users   UserRepository
	objects ObjectStore
}

// NewAvatarService returns a service that reports ErrStorageDisabled on
// every call when objects is nil.
func NewAvatarService(users UserRepository, objects ObjectStore) *AvatarService {
	return &AvatarService{users: users, objects: objects}
}

// Upload stores a new avatar and points the user at it. The previous
// object, if any, is removed afterwards.
func (s *AvatarService) Upload(ctx context.Context, userID int, r io.Reader, size int64, contentType string) (string, error) {
	if s.objects == nil {
		return "", ErrStorageDisabled
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: invalid content type", ErrInvalidInput)
	}
	ext, ok := avatarExtensions[strings.ToLower(mediaType)]
	if !ok {
		return "", fmt.Errorf("%w: unsupported image type %q", ErrInvalidInput, mediaType)
	}
	if size <= 0 || size > MaxAvatarSize {
		return "", fmt.Errorf("%w: avatar must be between 1 byte and %d bytes", ErrInvalidInput, MaxAvatarSize)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), ext)
	if err := s.objects.Put(ctx, key, r, size, mediaType); err != nil {
		return "", fmt.Errorf("put avatar: %w", err)
	}
	if err := s.users.SetAvatarKey(ctx, userID, key); err != nil {
		_ = s.objects.Delete(ctx, key)
		return "", fmt.Errorf("save avatar key: %w", err)
	}

	if user.AvatarKey != "" && user.AvatarKey != key {
		if err := s.objects.Delete(ctx, user.AvatarKey); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", user.AvatarKey).Msg("failed to remove previous avatar")
		}
	}
	return key, nil
}

// Open returns the avatar stream and its content type. The caller closes
// the stream.
func (s *AvatarService) Open(ctx context.Context, userID int) (io.ReadCloser, string, error) {
	if s.objects == nil {
		return nil, "", ErrStorageDisabled
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if user.AvatarKey == "" {
		return nil, "", ErrNoAvatar
	}

	body, err := s.objects.Get(ctx, user.AvatarKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", ErrNoAvatar
		}
		return nil, "", fmt.Errorf("get avatar: %w", err)
	}

	contentType := mime.TypeByExtension(path.Ext(user.AvatarKey))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return body, contentType, nil
}
