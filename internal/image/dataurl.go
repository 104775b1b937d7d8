package image

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/manash/chronosnap/pkg/models"
)

var ErrInvalidDataURL = errors.New("invalid image data URL")

const dataURLPrefix = "data:"

// DecodeDataURL parses "data:<mime>;base64,<payload>". A bare base64 string
// without the prefix is accepted and tagged as JPEG.
func DecodeDataURL(s string) (models.ImagePayload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.ImagePayload{}, fmt.Errorf("%w: empty", ErrInvalidDataURL)
	}

	mime := models.MimeJPEG
	encoded := s

	if strings.HasPrefix(s, dataURLPrefix) {
		header, body, ok := strings.Cut(s[len(dataURLPrefix):], ",")
		if !ok {
			return models.ImagePayload{}, fmt.Errorf("%w: missing data separator", ErrInvalidDataURL)
		}
		mediaType, isBase64 := strings.CutSuffix(header, ";base64")
		if !isBase64 {
			return models.ImagePayload{}, fmt.Errorf("%w: only base64 encoding is supported", ErrInvalidDataURL)
		}
		if mediaType != "" {
			mime = models.MimeType(strings.ToLower(mediaType))
		}
		encoded = body
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}

	p := models.NewImagePayload(mime, data)
	if err := p.Validate(); err != nil {
		return models.ImagePayload{}, err
	}
	return p, nil
}

func EncodeDataURL(p models.ImagePayload) string {
	if len(p.Data) == 0 {
		return ""
	}
	return dataURLPrefix + p.MimeType.String() + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}
