package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"lumigram/internal/gateway"
	"lumigram/internal/model"
)

// UpdateAvatar enforces size/type, normalizes the image to a 200x200 JPEG,
// uploads it and patches the viewer's profile row.
func (s *Store) UpdateAvatar(ctx context.Context, r io.Reader, declaredType string) (*model.Profile, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("avatar uploads are not configured")
	}
	profile, err := s.Profile(ctx)
	if err != nil {
		return nil, err
	}

	data, err := readAndValidateImage(r, declaredType, model.MaxAvatarSizeBytes)
	if err != nil {
		return nil, err
	}

	jpegBytes, err := resizeToJPEG(data, model.AvatarWidth, model.AvatarHeight, 85)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/%s%s", model.AvatarFolder, uuid.NewString(), model.AvatarExt)
	if err := s.blobs.Upload(ctx, s.bucket, path, bytes.NewReader(jpegBytes), model.ContentTypeJPEG); err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	url := s.blobs.PublicURL(s.bucket, path)
	var updated model.Profile
	err = s.table.Update(ctx, profilesTable,
		map[string]any{"avatar_url": url},
		[]gateway.Filter{gateway.Eq("id", profile.ID)},
		&updated)
	if err != nil {
		return nil, fmt.Errorf("update profile avatar: %w", err)
	}

	s.mu.Lock()
	if s.session != nil && s.session.UserID == updated.ID {
		s.profile = &updated
	}
	s.mu.Unlock()

	return &updated, nil
}

// readAndValidateImage loads the upload into memory with size and type checks.
func readAndValidateImage(r io.Reader, declaredType string, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, model.ErrFileTooLarge
	}

	contentType := declaredType
	if contentType == "" && len(data) > 0 {
		contentType = http.DetectContentType(data[:min(len(data), 512)])
	}
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if !model.IsAllowedImageType(contentType) {
		return nil, model.ErrInvalidImageType
	}

	return data, nil
}

// resizeToJPEG centers/crops to target size and encodes as JPEG.
func resizeToJPEG(data []byte, width, height, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	resized := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}
