package domain

import (
	"errors"

	"github.com/mpromonet/gin-spotdetect/internal/postproc"
)

// MediaKind is the kind of file a detection ran on.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

var (
	ErrImageProcessing = errors.New("image processing failed")
	ErrVideoProcessing = errors.New("video processing failed")
	ErrFileHandling    = errors.New("file handling failed")
)

// DetectionResult is what the dashboard shows after one upload.
type DetectionResult struct {
	Kind  MediaKind       `json:"kind"`
	Items []postproc.Item `json:"items"`
	// Count is the number of spots: boxes kept for an image, the busiest
	// sampled frame for a video.
	Count int `json:"count"`
	// Annotated holds the JPEG with boxes drawn, images only.
	Annotated []byte `json:"-"`
	Frames    int    `json:"frames,omitempty"`
	Sampled   int    `json:"sampled,omitempty"`
}

// ProcessingError reports which step of a detection failed. It matches
// ErrImageProcessing or ErrVideoProcessing depending on Kind.
type ProcessingError struct {
	Kind MediaKind
	Op   string
	Err  error
}

func (e *ProcessingError) Error() string {
	msg := string(e.Kind) + " processing failed: " + e.Op
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func (e *ProcessingError) Is(target error) bool {
	switch target {
	case ErrImageProcessing:
		return e.Kind == MediaImage
	case ErrVideoProcessing:
		return e.Kind == MediaVideo
	}
	return false
}
