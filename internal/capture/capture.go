// Package capture acquires a single still image from a live camera stream or
// from an uploaded file.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"github.com/manash/chronosnap/internal/log"
	"github.com/manash/chronosnap/internal/metrics"
	"github.com/manash/chronosnap/pkg/models"
)

var (
	ErrNoDevice         = errors.New("camera unavailable")
	ErrNotStreaming     = errors.New("no active camera stream")
	ErrStreamStopped    = errors.New("camera stream stopped")
	ErrUnsupportedImage = errors.New("unsupported image")
	ErrUploadTooLarge   = errors.New("upload exceeds size limit")
)

const (
	DefaultFacingMode = "user"
	DefaultWidth      = 1280
	DefaultHeight     = 720

	// JPEGQuality is the encoder quality used for live frames.
	JPEGQuality = 90

	MaxUploadBytes = 20 << 20

	// CameraNotice is shown to the user when live capture falls back to upload.
	CameraNotice = "Unable to access camera. Please check permissions."
)

// Constraints describe the requested video source.
type Constraints struct {
	FacingMode string `json:"facing_mode"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

func DefaultConstraints() Constraints {
	return Constraints{
		FacingMode: DefaultFacingMode,
		Width:      DefaultWidth,
		Height:     DefaultHeight,
	}
}

// Camera acquires live video sources.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired video source. Stop releases the device and is safe
// to call more than once.
type Stream interface {
	Frame() (image.Image, error)
	Stop()
}

// AcquisitionError reports that live capture is unavailable. It is recovered
// locally by switching to upload mode.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("camera acquisition failed: %v", e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

type Mode string

const (
	ModeIdle   Mode = "idle"
	ModeLive   Mode = "live"
	ModeUpload Mode = "upload"
)

// Capturer owns the camera stream for the duration of one capture step.
type Capturer struct {
	mu          sync.Mutex
	camera      Camera
	constraints Constraints
	stream      Stream
	mode        Mode
	acqErr      *AcquisitionError
	logger      zerolog.Logger
}

// NewCapturer returns a capturer backed by camera. A nil camera means only
// uploads are possible.
func NewCapturer(camera Camera) *Capturer {
	return &Capturer{
		camera:      camera,
		constraints: DefaultConstraints(),
		mode:        ModeIdle,
		logger:      log.WithComponent("capture"),
	}
}

// Start tries to acquire the camera. When that fails the capturer switches to
// upload mode and the failure is kept as a notice; Start itself never fails.
func (c *Capturer) Start(ctx context.Context) Mode {
	c.mu.Lock()
	camera := c.camera
	constraints := c.constraints
	c.releaseLocked()
	c.acqErr = nil
	c.mu.Unlock()

	if camera == nil {
		return c.fallback(ErrNoDevice)
	}

	stream, err := camera.Open(ctx, constraints)
	if err != nil {
		return c.fallback(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
	c.stream = stream
	c.mode = ModeLive
	c.logger.Debug().Str("facing_mode", constraints.FacingMode).Msg("camera acquired")
	return ModeLive
}

func (c *Capturer) fallback(err error) Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
	c.mode = ModeUpload
	c.acqErr = &AcquisitionError{Err: err}
	metrics.RecordCapture("live", "unavailable")
	c.logger.Info().Err(err).Msg("camera unavailable, falling back to upload")
	return ModeUpload
}

// Camera returns the camera the capturer was built with, or nil.
func (c *Capturer) Camera() Camera {
	return c.camera
}

func (c *Capturer) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Notice returns the user-facing acquisition notice, or "" when the camera
// was acquired or never requested.
func (c *Capturer) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acqErr == nil {
		return ""
	}
	return CameraNotice
}

func (c *Capturer) AcquisitionErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acqErr == nil {
		return nil
	}
	return c.acqErr
}

// Snap grabs the current frame as a JPEG and releases the stream.
func (c *Capturer) Snap() (models.ImagePayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return models.ImagePayload{}, ErrNotStreaming
	}

	frame, err := c.stream.Frame()
	c.releaseLocked()
	if err != nil {
		metrics.RecordCapture("live", "failure")
		return models.ImagePayload{}, fmt.Errorf("failed to grab frame: %w", err)
	}

	payload, err := EncodeFrame(frame)
	if err != nil {
		metrics.RecordCapture("live", "failure")
		return models.ImagePayload{}, err
	}
	metrics.RecordCapture("live", "success")
	return payload, nil
}

// Upload turns user-supplied file bytes into a payload, keeping the file's
// own encoding. Any open stream is released.
func (c *Capturer) Upload(data []byte, filename string) (models.ImagePayload, error) {
	c.mu.Lock()
	c.releaseLocked()
	c.mu.Unlock()

	payload, err := DecodeUpload(data, filename)
	if err != nil {
		metrics.RecordCapture("upload", "failure")
		return models.ImagePayload{}, err
	}
	metrics.RecordCapture("upload", "success")
	return payload, nil
}

// Cancel aborts the capture step and releases the device.
func (c *Capturer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
	c.acqErr = nil
}

func (c *Capturer) releaseLocked() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	c.mode = ModeIdle
}

// EncodeFrame encodes a raster frame as JPEG at JPEGQuality.
func EncodeFrame(frame image.Image) (models.ImagePayload, error) {
	if frame == nil {
		return models.ImagePayload{}, fmt.Errorf("%w: empty frame", ErrUnsupportedImage)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return models.ImagePayload{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	return models.NewImagePayload(models.MimeJPEG, buf.Bytes()), nil
}

// DecodeUpload sniffs the content type of an uploaded file, falling back to
// the filename extension, and checks that the bytes decode as that image.
func DecodeUpload(data []byte, filename string) (models.ImagePayload, error) {
	if len(data) == 0 {
		return models.ImagePayload{}, fmt.Errorf("%w: empty file", ErrUnsupportedImage)
	}
	if len(data) > MaxUploadBytes {
		return models.ImagePayload{}, fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, len(data))
	}

	mime := models.MimeType(mimetype.Detect(data).String())
	if !mime.IsValid() {
		ext, ok := models.MimeTypeFromExtension(filepath.Ext(filename))
		if !ok {
			return models.ImagePayload{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mimetype.Detect(data).String())
		}
		mime = ext
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return models.ImagePayload{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	return models.NewImagePayload(mime, data), nil
}
