// Package booth holds the photo booth wizard: one Controller per session
// drives the phase machine and owns the session's remote operations.
package booth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/internal/log"
	"github.com/manash/chronosnap/internal/metrics"
	"github.com/manash/chronosnap/internal/provider"
	"github.com/manash/chronosnap/pkg/models"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrBusy              = errors.New("another operation is in progress")
	ErrUnknownEra        = errors.New("unknown era")
	ErrEmptyInstruction  = errors.New("edit instruction cannot be empty")
	ErrSuperseded        = errors.New("operation superseded by reset")
	ErrClosed            = errors.New("session closed")
)

// Messages shown to the user when a remote operation fails.
const (
	TransformFailedMessage = "Time travel malfunction! Please try again."
	EditFailedMessage      = "Failed to edit image."
	AnalyzeFailedMessage   = "Failed to analyze image."
)

// OperationError is returned by Edit and Analyze when the remote call fails.
// The session is left untouched; surfaces show Message as an alert.
type OperationError struct {
	Op  OpKind
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Message() string {
	switch e.Op {
	case OpEdit:
		return EditFailedMessage
	case OpAnalyze:
		return AnalyzeFailedMessage
	default:
		return TransformFailedMessage
	}
}

type Controller struct {
	id       string
	gen      provider.Provider
	catalog  *models.Catalog
	capturer *capture.Capturer
	logger   zerolog.Logger
	now      func() time.Time

	mu            sync.Mutex
	phase         Phase
	sourceImage   *models.ImagePayload
	selectedEra   *models.Era
	currentResult *models.ImagePayload
	lastError     string
	analysis      string
	ops           map[OpKind]OpState

	// epoch advances on every reset; completions from an older epoch are
	// dropped.
	epoch      uint64
	cancel     context.CancelFunc
	captureSeq uint64

	version    uint64
	updatedAt  time.Time
	lastActive time.Time
	closed     bool

	subs    map[int]chan Snapshot
	nextSub int
}

// NewController returns a session in the Home phase. A nil catalog uses the
// default eras and a nil capturer allows uploads only.
func NewController(id string, gen provider.Provider, catalog *models.Catalog, capturer *capture.Capturer) *Controller {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	if capturer == nil {
		capturer = capture.NewCapturer(nil)
	}
	now := time.Now()
	c := &Controller{
		id:         id,
		gen:        gen,
		catalog:    catalog,
		capturer:   capturer,
		logger:     log.WithComponent("booth").With().Str("session", id).Logger(),
		now:        time.Now,
		phase:      PhaseHome,
		ops:        idleOps(),
		updatedAt:  now,
		lastActive: now,
		subs:       make(map[int]chan Snapshot),
	}
	return c
}

func idleOps() map[OpKind]OpState {
	ops := make(map[OpKind]OpState, 3)
	for _, k := range OpKinds() {
		ops[k] = OpIdle
	}
	return ops
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) Catalog() *models.Catalog {
	return c.catalog
}

func (c *Controller) Capturer() *capture.Capturer {
	return c.capturer
}

// LastActive is the time of the most recent intent.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	ops := make(map[OpKind]OpState, len(c.ops))
	for k, v := range c.ops {
		ops[k] = v
	}
	return Snapshot{
		ID:            c.id,
		Phase:         c.phase,
		SourceImage:   clonePayload(c.sourceImage),
		SelectedEra:   cloneEra(c.selectedEra),
		CurrentResult: clonePayload(c.currentResult),
		LastError:     c.lastError,
		Analysis:      c.analysis,
		Ops:           ops,
		CaptureMode:   c.capturer.Mode(),
		CaptureNotice: c.capturer.Notice(),
		Version:       c.version,
		UpdatedAt:     c.updatedAt,
	}
}

// Subscribe returns a channel that receives the current snapshot and then
// one snapshot after every change. A slow reader only ever sees the latest
// snapshot. The channel is closed by the returned cancel func or when the
// session is closed.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// publishLocked bumps the version and pushes the new snapshot to every
// subscriber, replacing any snapshot the subscriber has not read yet.
func (c *Controller) publishLocked() {
	c.version++
	c.updatedAt = c.now()
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Controller) transitionLocked(to Phase) {
	from := c.phase
	c.phase = to
	metrics.RecordTransition(string(from), string(to))
	c.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("phase transition")
}

func (c *Controller) guardLocked(event string, want ...Phase) error {
	if c.closed {
		return ErrClosed
	}
	c.lastActive = c.now()
	for _, p := range want {
		if c.phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, event, c.phase)
}

func (c *Controller) inFlightLocked() bool {
	for _, st := range c.ops {
		if st == OpRunning {
			return true
		}
	}
	return false
}

// StartCapture moves Home to Capturing and tries to acquire the camera.
// Camera failure is not an error: the capturer falls back to upload mode.
func (c *Controller) StartCapture(ctx context.Context) (capture.Mode, error) {
	c.mu.Lock()
	if err := c.guardLocked("start_capture", PhaseHome); err != nil {
		c.mu.Unlock()
		return capture.ModeIdle, err
	}
	c.transitionLocked(PhaseCapturing)
	seq := c.enterCaptureLocked()
	c.publishLocked()
	c.mu.Unlock()

	return c.acquire(ctx, seq), nil
}

// Back returns from era selection to capturing and reacquires the camera.
// The previous source image is kept until a new one is captured.
func (c *Controller) Back(ctx context.Context) (capture.Mode, error) {
	c.mu.Lock()
	if err := c.guardLocked("back", PhaseEraSelection); err != nil {
		c.mu.Unlock()
		return capture.ModeIdle, err
	}
	c.transitionLocked(PhaseCapturing)
	seq := c.enterCaptureLocked()
	c.publishLocked()
	c.mu.Unlock()

	return c.acquire(ctx, seq), nil
}

func (c *Controller) enterCaptureLocked() uint64 {
	c.captureSeq++
	return c.captureSeq
}

// leaveCaptureLocked invalidates any pending acquisition and releases the
// device.
func (c *Controller) leaveCaptureLocked() {
	c.captureSeq++
	c.capturer.Cancel()
}

func (c *Controller) acquire(ctx context.Context, seq uint64) capture.Mode {
	mode := c.capturer.Start(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captureSeq != seq || c.phase != PhaseCapturing {
		c.capturer.Cancel()
		return capture.ModeIdle
	}
	c.publishLocked()
	return mode
}

// ImageCaptured accepts the captured still and moves to era selection.
func (c *Controller) ImageCaptured(img models.ImagePayload) error {
	if err := img.Validate(); err != nil {
		return fmt.Errorf("%w: %w", capture.ErrUnsupportedImage, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked("image_captured", PhaseCapturing); err != nil {
		return err
	}
	c.sourceImage = clonePayload(&img)
	c.leaveCaptureLocked()
	c.transitionLocked(PhaseEraSelection)
	c.publishLocked()
	return nil
}

// Snap grabs a frame from the live camera and feeds it to ImageCaptured.
func (c *Controller) Snap() error {
	c.mu.Lock()
	err := c.guardLocked("snap", PhaseCapturing)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	img, err := c.capturer.Snap()
	if err != nil {
		return err
	}
	return c.ImageCaptured(img)
}

// Upload decodes an uploaded file and feeds it to ImageCaptured.
func (c *Controller) Upload(data []byte, filename string) error {
	c.mu.Lock()
	err := c.guardLocked("upload", PhaseCapturing)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	img, err := c.capturer.Upload(data, filename)
	if err != nil {
		return err
	}
	return c.ImageCaptured(img)
}

// Cancel aborts capturing and returns home without an image.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked("cancel", PhaseCapturing); err != nil {
		return err
	}
	c.leaveCaptureLocked()
	c.transitionLocked(PhaseHome)
	c.publishLocked()
	return nil
}

// begin marks kind as running and returns a context for the remote call
// together with the epoch it belongs to.
func (c *Controller) beginLocked(ctx context.Context, kind OpKind) (context.Context, uint64) {
	opCtx, cancel := context.WithCancel(ctx)
	c.ops[kind] = OpRunning
	c.cancel = cancel
	return opCtx, c.epoch
}

// finishLocked reports whether the completion still belongs to the current
// epoch and, if so, marks kind idle again.
func (c *Controller) finishLocked(kind OpKind, epoch uint64) bool {
	if epoch != c.epoch || c.closed {
		return false
	}
	c.ops[kind] = OpIdle
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return true
}

// ChooseEra selects an era and runs the transform. It blocks until the
// remote call completes. On failure the session returns to era selection
// with LastError set and the error is returned.
func (c *Controller) ChooseEra(ctx context.Context, eraID string) error {
	c.mu.Lock()
	if err := c.guardLocked("era_chosen", PhaseEraSelection); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.sourceImage == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: era chosen without a captured image", ErrInvalidTransition)
	}
	era, ok := c.catalog.Get(eraID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownEra, eraID)
	}
	if c.inFlightLocked() {
		c.mu.Unlock()
		return ErrBusy
	}

	c.selectedEra = &era
	c.lastError = ""
	c.transitionLocked(PhaseProcessing)
	opCtx, epoch := c.beginLocked(ctx, OpTransform)
	src := c.sourceImage.Clone()
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info().Str("era", era.ID).Msg("transforming")
	result, err := c.gen.Transform(opCtx, src, era.Prompt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finishLocked(OpTransform, epoch) {
		return ErrSuperseded
	}

	if err != nil {
		c.lastError = err.Error()
		if c.lastError == "" {
			c.lastError = TransformFailedMessage
		}
		c.transitionLocked(PhaseEraSelection)
		c.publishLocked()
		c.logger.Warn().Err(err).Str("era", era.ID).Msg("transform failed")
		return err
	}

	c.currentResult = clonePayload(&result)
	c.transitionLocked(PhaseResult)
	c.publishLocked()
	return nil
}

// Edit applies a free-text instruction to the current result. The
// instruction is sent verbatim. A successful edit clears the analysis; a
// failed one leaves the session untouched and returns an *OperationError.
func (c *Controller) Edit(ctx context.Context, instruction string) error {
	c.mu.Lock()
	if err := c.guardLocked("edit_requested", PhaseResult); err != nil {
		c.mu.Unlock()
		return err
	}
	if strings.TrimSpace(instruction) == "" {
		c.mu.Unlock()
		return ErrEmptyInstruction
	}
	if c.inFlightLocked() {
		c.mu.Unlock()
		return ErrBusy
	}

	opCtx, epoch := c.beginLocked(ctx, OpEdit)
	current := c.currentResult.Clone()
	c.publishLocked()
	c.mu.Unlock()

	result, err := c.gen.Edit(opCtx, current, instruction)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finishLocked(OpEdit, epoch) {
		return ErrSuperseded
	}

	if err != nil {
		c.publishLocked()
		c.logger.Warn().Err(err).Msg("edit failed")
		return &OperationError{Op: OpEdit, Err: err}
	}

	c.currentResult = clonePayload(&result)
	c.analysis = ""
	c.publishLocked()
	return nil
}

// Analyze requests a description of the current result and returns it.
// When an analysis is already present it is returned without a remote call;
// when one is already running Analyze returns "" and nil.
func (c *Controller) Analyze(ctx context.Context) (string, error) {
	c.mu.Lock()
	if err := c.guardLocked("analyze_requested", PhaseResult); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if c.analysis != "" {
		text := c.analysis
		c.mu.Unlock()
		return text, nil
	}
	if c.ops[OpAnalyze] == OpRunning {
		c.mu.Unlock()
		return "", nil
	}
	if c.inFlightLocked() {
		c.mu.Unlock()
		return "", ErrBusy
	}

	opCtx, epoch := c.beginLocked(ctx, OpAnalyze)
	current := c.currentResult.Clone()
	c.publishLocked()
	c.mu.Unlock()

	text, err := c.gen.Analyze(opCtx, current)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finishLocked(OpAnalyze, epoch) {
		return "", ErrSuperseded
	}

	if err != nil {
		c.publishLocked()
		c.logger.Warn().Err(err).Msg("analysis failed")
		return "", &OperationError{Op: OpAnalyze, Err: err}
	}

	if strings.TrimSpace(text) == "" {
		text = provider.AnalysisPlaceholder
	}
	c.analysis = text
	c.publishLocked()
	return text, nil
}

// Reset returns to Home from any phase, clears every field and cancels the
// in-flight operation, whose completion is then discarded.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.lastActive = c.now()
	c.resetLocked()
	c.publishLocked()
	return nil
}

func (c *Controller) resetLocked() {
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.ops = idleOps()
	c.leaveCaptureLocked()

	c.sourceImage = nil
	c.selectedEra = nil
	c.currentResult = nil
	c.lastError = ""
	c.analysis = ""
	if c.phase != PhaseHome {
		c.transitionLocked(PhaseHome)
	}
}

// Close tears the session down: it resets, releases the camera and closes
// every subscriber channel. Later intents fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resetLocked()
	c.publishLocked()
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.logger.Debug().Msg("session closed")
}
