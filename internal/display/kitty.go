package display

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	_ "image/jpeg"

	"github.com/manash/chronosnap/pkg/models"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

var ErrUnsupportedFormat = errors.New("image format cannot be shown in the terminal")

// KittyEncoder writes images using the kitty graphics protocol. The protocol
// only takes PNG directly, so JPEG input is re-encoded first.
type KittyEncoder struct {
	out     io.Writer
	columns int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

// WithColumns scales the image to the given number of terminal cells wide.
func (e *KittyEncoder) WithColumns(n int) *KittyEncoder {
	e.columns = n
	return e
}

func (e *KittyEncoder) EncodePayload(img models.ImagePayload) error {
	data, err := AsPNG(img)
	if err != nil {
		return err
	}
	return e.Encode(data)
}

// Encode writes PNG bytes.
func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) <= chunkSize {
		_, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, e.firstParams(), encoded, escapeEnd)
		return err
	}
	return e.writeChunked(encoded)
}

func (e *KittyEncoder) firstParams() string {
	params := "a=T,f=100,q=2"
	if e.columns > 0 {
		params += fmt.Sprintf(",c=%d", e.columns)
	}
	return params
}

func (e *KittyEncoder) writeChunked(encoded string) error {
	chunks := splitIntoChunks(encoded, chunkSize)

	for i, chunk := range chunks {
		var params string
		switch {
		case i == 0:
			params = e.firstParams() + ",m=1"
		case i == len(chunks)-1:
			params = "m=0"
		default:
			params = "m=1"
		}

		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, params, chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		if len(s) < size {
			size = len(s)
		}
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return chunks
}

// AsPNG returns the payload as PNG bytes, decoding and re-encoding JPEG.
func AsPNG(img models.ImagePayload) ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	switch img.MimeType {
	case models.MimePNG:
		return img.Data, nil
	case models.MimeJPEG, models.MimeJPG:
		decoded, _, err := image.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", img.MimeType, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, decoded); err != nil {
			return nil, fmt.Errorf("failed to re-encode as png: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, img.MimeType)
	}
}
