// Package staging stores uploaded media at a publicly reachable URL so the
// platforms can fetch it, and removes it once the job no longer needs it.
package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// Validation errors returned by Put
var (
	ErrEmptyMedia       = errors.New("no media supplied")
	ErrUnsupportedMedia = errors.New("media is neither an image nor a video")
	ErrKindMismatch     = errors.New("media content does not match the declared kind")
)

// Stager persists media and hands back a public reference
type Stager interface {
	// Put writes the media and returns once it is fully readable at the returned URL
	Put(ctx context.Context, req StageRequest) (Staged, error)
	// URL returns a reference to staged media that is valid now
	URL(ctx context.Context, key string) (string, error)
	// Delete removes staged media. A missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Name identifies the backend in logs and metrics
	Name() string
}

// StageRequest is one upload. Kind may be empty, in which case it is
// inferred from the content.
type StageRequest struct {
	Data     []byte
	Filename string
	Kind     models.MediaKind
}

// Staged is the stored copy of an upload
type Staged struct {
	Key         string
	URL         string
	ContentType string
	Kind        models.MediaKind
	Size        int64
}

// Detected is the result of content sniffing
type Detected struct {
	Kind        models.MediaKind
	ContentType string
	Extension   string
}

// Detect sniffs the media type and checks it against the declared kind
func Detect(data []byte, declared models.MediaKind) (Detected, error) {
	if len(data) == 0 {
		return Detected{}, ErrEmptyMedia
	}

	mtype := mimetype.Detect(data)
	contentType := mtype.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}

	var kind models.MediaKind
	switch {
	case strings.HasPrefix(contentType, "image/"):
		kind = models.MediaKindImage
	case strings.HasPrefix(contentType, "video/"):
		kind = models.MediaKindVideo
	default:
		return Detected{}, fmt.Errorf("%w: detected %s", ErrUnsupportedMedia, contentType)
	}

	if declared != "" && declared != kind {
		return Detected{}, fmt.Errorf("%w: declared %s, detected %s", ErrKindMismatch, declared, contentType)
	}

	return Detected{Kind: kind, ContentType: contentType, Extension: mtype.Extension()}, nil
}

// IsValidation reports whether err was caused by the upload itself
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyMedia) || errors.Is(err, ErrUnsupportedMedia) || errors.Is(err, ErrKindMismatch)
}
