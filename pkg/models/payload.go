package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrEmptyImage          = errors.New("image data cannot be empty")
	ErrUnsupportedMimeType = errors.New("unsupported image mime type")
)

type MimeType string

const (
	MimePNG  MimeType = "image/png"
	MimeJPEG MimeType = "image/jpeg"
	MimeJPG  MimeType = "image/jpg"
	MimeWebP MimeType = "image/webp"
)

func ValidMimeTypes() []MimeType {
	return []MimeType{MimePNG, MimeJPEG, MimeJPG, MimeWebP}
}

func (m MimeType) IsValid() bool {
	return slices.Contains(ValidMimeTypes(), m)
}

func (m MimeType) String() string {
	return string(m)
}

// Extension returns the file extension for the mime type, without the dot.
func (m MimeType) Extension() string {
	switch m {
	case MimeJPEG, MimeJPG:
		return "jpg"
	case MimeWebP:
		return "webp"
	default:
		return "png"
	}
}

// MimeTypeFromExtension maps a filename extension (with or without the dot)
// to a mime type. The second return is false for unknown extensions.
func MimeTypeFromExtension(ext string) (MimeType, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return MimePNG, true
	case "jpg", "jpeg":
		return MimeJPEG, true
	case "webp":
		return MimeWebP, true
	default:
		return "", false
	}
}

// ImagePayload is a still image tagged with its encoding.
type ImagePayload struct {
	MimeType MimeType
	Data     []byte
}

func NewImagePayload(mime MimeType, data []byte) ImagePayload {
	return ImagePayload{MimeType: mime, Data: data}
}

func (p ImagePayload) Validate() error {
	if len(p.Data) == 0 {
		return ErrEmptyImage
	}
	if !p.MimeType.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedMimeType, p.MimeType)
	}
	return nil
}

func (p ImagePayload) IsZero() bool {
	return len(p.Data) == 0 && p.MimeType == ""
}

// Clone returns a deep copy so callers can hand the payload out without
// sharing the backing array.
func (p ImagePayload) Clone() ImagePayload {
	if p.Data == nil {
		return ImagePayload{MimeType: p.MimeType}
	}
	return ImagePayload{MimeType: p.MimeType, Data: slices.Clone(p.Data)}
}
