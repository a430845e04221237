package composer

import (
	"path/filepath"
	"strings"

	"lumigram/internal/model"
)

// videoExts covers the containers the app accepts when no MIME type is
// available to decide.
var videoExts = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".webm": {},
}

// DetectKind infers the media kind from the MIME type, falling back to the
// file extension when MIME is absent. Anything unrecognized is treated as an
// image; the backend stores whatever bytes were uploaded either way.
func DetectKind(contentType, filename string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	switch {
	case strings.HasPrefix(ct, "video/"):
		return model.MediaKindVideo
	case strings.HasPrefix(ct, "image/"):
		return model.MediaKindImage
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := videoExts[ext]; ok {
		return model.MediaKindVideo
	}
	return model.MediaKindImage
}
