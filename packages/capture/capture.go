package capture

import (
	"io"
	"log/slog"
)

// Capture manages a stack of redirection frames over a Stream.
//
// The original destination is recorded when the Capture is created; in tee
// mode every frame writes to that original destination first and to its own
// buffer second.
type Capture struct {
	stream   *Stream
	orig     io.Writer
	tee      bool
	maxBytes int
	logger   *slog.Logger

	stack []io.Writer
	buf   *Buffer
}

type Option func(*Capture)

// WithStream captures s instead of the package-level Stdout.
func WithStream(s *Stream) Option {
	return func(c *Capture) {
		c.stream = s
	}
}

// WithTee makes captured output visible on the original destination as well.
func WithTee(tee bool) Option {
	return func(c *Capture) {
		c.tee = tee
	}
}

// WithMaxBytes bounds every frame's buffer to the last n bytes.
func WithMaxBytes(n int) Option {
	return func(c *Capture) {
		c.maxBytes = n
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Capture) {
		c.logger = l
	}
}

// New creates a Capture. The stream's current destination becomes the
// original destination restored by Finalize.
func New(opts ...Option) *Capture {
	c := &Capture{
		stream: Stdout,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.orig = c.stream.Current()
	return c
}

// Stream returns the stream this capture redirects.
func (c *Capture) Stream() *Stream {
	return c.stream
}

// Tee reports whether tee mode is on.
func (c *Capture) Tee() bool {
	return c.tee
}

// Start pushes the active destination and redirects the stream into a new
// buffer.
func (c *Capture) Start() {
	c.stack = append(c.stack, c.stream.Current())
	c.buf = NewBuffer(c.maxBytes)

	if c.tee {
		c.stream.swap(Tee(c.orig, c.buf))
	} else {
		c.stream.swap(c.buf)
	}
	c.logger.Debug("capture frame pushed", "depth", len(c.stack), "tee", c.tee)
}

// End restores the destination that was active before the last Start. It is
// a no-op when no frame is active.
func (c *Capture) End() {
	if len(c.stack) == 0 {
		return
	}
	last := len(c.stack) - 1
	prev := c.stack[last]
	c.stack[last] = nil
	c.stack = c.stack[:last]
	c.stream.swap(prev)
	c.logger.Debug("capture frame popped", "depth", len(c.stack))
}

// Finalize pops every remaining frame.
func (c *Capture) Finalize() {
	for len(c.stack) > 0 {
		c.End()
	}
}

// Depth returns the number of active frames.
func (c *Capture) Depth() int {
	return len(c.stack)
}

// Buffer returns the text captured by the live buffer. ok is false when no
// buffer is live.
func (c *Capture) Buffer() (text string, ok bool) {
	if c.buf == nil {
		return "", false
	}
	return c.buf.String(), true
}

// Dropped returns how many bytes the live buffer discarded to stay within
// its limit.
func (c *Capture) Dropped() int64 {
	if c.buf == nil || !c.buf.Truncated() {
		return 0
	}
	return c.buf.TotalBytes() - int64(c.buf.Len())
}

// Discard forgets the live buffer. Output still routed to it is lost.
func (c *Capture) Discard() {
	c.buf = nil
}
