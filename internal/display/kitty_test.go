package display

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/manash/chronosnap/pkg/models"
)

func TestKittyEncoder_Encode_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewKittyEncoder(&buf).Encode(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty output, got %q", buf.String())
	}
}

func TestKittyEncoder_Encode_SmallImage(t *testing.T) {
	var buf bytes.Buffer
	data := []byte("small test data")
	if err := NewKittyEncoder(&buf).Encode(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.HasPrefix(output, "\x1b_G") || !strings.HasSuffix(output, "\x1b\\") {
		t.Errorf("output not framed as a kitty escape: %q", output)
	}
	for _, want := range []string{"a=T", "f=100", "q=2", base64.StdEncoding.EncodeToString(data)} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(output, "c=") {
		t.Error("no column hint expected by default")
	}
}

func TestKittyEncoder_WithColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := NewKittyEncoder(&buf).WithColumns(40).Encode([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "a=T,f=100,q=2,c=40;") {
		t.Errorf("column hint missing: %q", buf.String())
	}
}

func TestKittyEncoder_Encode_LargeImage(t *testing.T) {
	var buf bytes.Buffer
	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i % 256)
	}

	if err := NewKittyEncoder(&buf).Encode(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if n := strings.Count(output, "\x1b_G"); n < 2 {
		t.Errorf("expected multiple chunks, got %d escape sequences", n)
	}
	if !strings.Contains(output, "m=1") || !strings.Contains(output, "m=0") {
		t.Error("chunked output should carry more-data and final-chunk flags")
	}
}

func TestKittyEncoder_Encode_ExactChunkSize(t *testing.T) {
	var buf bytes.Buffer
	data := make([]byte, (chunkSize*3)/4)

	if err := NewKittyEncoder(&buf).Encode(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(buf.String(), "\x1b_G"); n != 1 {
		t.Errorf("expected single chunk for exact size, got %d", n)
	}
}

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		size     int
		expected []string
	}{
		{"empty string", "", 10, nil},
		{"smaller than chunk", "hello", 10, []string{"hello"}},
		{"exact chunk size", "hello", 5, []string{"hello"}},
		{"multiple chunks", "hello world", 5, []string{"hello", " worl", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitIntoChunks(tt.input, tt.size)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d chunks, got %d", len(tt.expected), len(result))
			}
			for i, chunk := range result {
				if chunk != tt.expected[i] {
					t.Errorf("chunk %d: expected %q, got %q", i, tt.expected[i], chunk)
				}
			}
		})
	}
}

func TestKittyEncoder_WriteError(t *testing.T) {
	enc := NewKittyEncoder(&errorWriter{err: bytes.ErrTooLarge})
	if err := enc.Encode([]byte("test")); err == nil {
		t.Error("expected error from failing writer")
	}
}

type errorWriter struct {
	err error
}

func (w *errorWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

func TestAsPNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 3))

	var pngBuf, jpegBuf bytes.Buffer
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(&jpegBuf, src, nil); err != nil {
		t.Fatal(err)
	}

	got, err := AsPNG(models.NewImagePayload(models.MimePNG, pngBuf.Bytes()))
	if err != nil || !bytes.Equal(got, pngBuf.Bytes()) {
		t.Errorf("png should pass through unchanged, err = %v", err)
	}

	got, err = AsPNG(models.NewImagePayload(models.MimeJPEG, jpegBuf.Bytes()))
	if err != nil {
		t.Fatalf("AsPNG(jpeg) error = %v", err)
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(got)); err != nil || format != "png" {
		t.Errorf("jpeg should be re-encoded as png, got %q (%v)", format, err)
	}

	_, err = AsPNG(models.NewImagePayload(models.MimeWebP, []byte("RIFF")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("AsPNG(webp) error = %v, want ErrUnsupportedFormat", err)
	}

	if _, err := AsPNG(models.ImagePayload{}); !errors.Is(err, models.ErrEmptyImage) {
		t.Errorf("AsPNG(empty) error = %v, want ErrEmptyImage", err)
	}
}
