package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// DefaultAcquireTimeout bounds how long Open waits for the first frame.
const DefaultAcquireTimeout = 10 * time.Second

// Feed is a Camera whose frames are pushed by a remote client, typically a
// browser streaming its webcam over a websocket. At most one client is
// attached at a time; attaching a new one detaches the previous.
type Feed struct {
	mu        sync.Mutex
	current   *Attachment
	notify    chan struct{}
	timeout   time.Duration
	requested Constraints
}

func NewFeed(timeout time.Duration) *Feed {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &Feed{
		notify:    make(chan struct{}),
		timeout:   timeout,
		requested: DefaultConstraints(),
	}
}

// Attach registers a new frame source and returns it.
func (f *Feed) Attach() *Attachment {
	a := &Attachment{feed: f, done: make(chan struct{})}

	f.mu.Lock()
	prev := f.current
	f.current = a
	f.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	f.broadcast()
	return a
}

// Requested returns the constraints of the most recent Open call.
func (f *Feed) Requested() Constraints {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requested
}

// Open waits until an attached client has delivered at least one frame.
func (f *Feed) Open(ctx context.Context, c Constraints) (Stream, error) {
	f.mu.Lock()
	f.requested = c
	f.mu.Unlock()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	for {
		f.mu.Lock()
		a := f.current
		wait := f.notify
		f.mu.Unlock()

		if a != nil && a.ready() {
			return &feedStream{att: a}, nil
		}

		select {
		case <-wait:
		case <-timer.C:
			return nil, fmt.Errorf("%w: no frames within %s", ErrNoDevice, f.timeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNoDevice, ctx.Err())
		}
	}
}

func (f *Feed) broadcast() {
	f.mu.Lock()
	close(f.notify)
	f.notify = make(chan struct{})
	f.mu.Unlock()
}

func (f *Feed) detach(a *Attachment) {
	f.mu.Lock()
	if f.current == a {
		f.current = nil
	}
	f.mu.Unlock()
	f.broadcast()
}

// Attachment is one connected frame source.
type Attachment struct {
	feed *Feed

	mu    sync.Mutex
	frame image.Image

	done chan struct{}
	once sync.Once
}

// Push decodes an encoded still (png, jpeg or webp) and makes it the latest frame.
func (a *Attachment) Push(data []byte) error {
	select {
	case <-a.done:
		return ErrStreamStopped
	default:
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	a.mu.Lock()
	first := a.frame == nil
	a.frame = img
	a.mu.Unlock()

	if first {
		a.feed.broadcast()
	}
	return nil
}

// Done is closed once the attachment is released, either by the client
// going away or by the consumer stopping the stream.
func (a *Attachment) Done() <-chan struct{} {
	return a.done
}

func (a *Attachment) Close() {
	a.once.Do(func() {
		close(a.done)
		a.feed.detach(a)
	})
}

func (a *Attachment) ready() bool {
	select {
	case <-a.done:
		return false
	default:
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frame != nil
}

type feedStream struct {
	att *Attachment
}

func (s *feedStream) Frame() (image.Image, error) {
	select {
	case <-s.att.done:
		return nil, ErrStreamStopped
	default:
	}
	s.att.mu.Lock()
	defer s.att.mu.Unlock()
	if s.att.frame == nil {
		return nil, ErrStreamStopped
	}
	return s.att.frame, nil
}

func (s *feedStream) Stop() {
	s.att.Close()
}
