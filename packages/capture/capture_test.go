package capture

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCapture(t *testing.T, opts ...Option) (*Capture, *Stream, *bytes.Buffer) {
	t.Helper()
	external := &bytes.Buffer{}
	stream := NewStream(external)
	c := New(append([]Option{WithStream(stream)}, opts...)...)
	return c, stream, external
}

func TestCapture_StartCapturesWrites(t *testing.T) {
	c, stream, external := newTestCapture(t)

	c.Start()
	stream.Printf("hello")

	text, ok := c.Buffer()
	require.True(t, ok)
	assert.Equal(t, "hello", text)
	assert.Empty(t, external.String())
}

func TestCapture_EndRestoresDestination(t *testing.T) {
	c, stream, external := newTestCapture(t)

	c.Start()
	stream.Printf("captured")
	c.End()
	stream.Printf("visible")

	text, _ := c.Buffer()
	assert.Equal(t, "captured", text)
	assert.Equal(t, "visible", external.String())
	assert.Same(t, external, stream.Current())
}

func TestCapture_EndWithEmptyStack(t *testing.T) {
	c, stream, external := newTestCapture(t)

	assert.NotPanics(t, func() {
		c.End()
		c.Finalize()
	})
	assert.Equal(t, 0, c.Depth())
	assert.Same(t, external, stream.Current())
}

func TestCapture_BufferWithoutFrame(t *testing.T) {
	c, _, _ := newTestCapture(t)

	text, ok := c.Buffer()
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestCapture_Tee(t *testing.T) {
	c, stream, external := newTestCapture(t, WithTee(true))

	c.Start()
	stream.Printf("both")

	text, ok := c.Buffer()
	require.True(t, ok)
	assert.Equal(t, "both", text)
	assert.Equal(t, "both", external.String())

	tee, isTee := stream.Current().(*TeeWriter)
	require.True(t, isTee)
	targets := tee.Targets()
	require.Len(t, targets, 2)
	assert.Same(t, external, targets[0], "external sink must receive writes first")
}

func TestCapture_NestedFrames(t *testing.T) {
	c, stream, external := newTestCapture(t)

	c.Start()
	stream.Printf("outer")
	c.Start()
	stream.Printf("inner")
	assert.Equal(t, 2, c.Depth())

	text, _ := c.Buffer()
	assert.Equal(t, "inner", text)

	c.End()
	assert.Equal(t, 1, c.Depth())
	stream.Printf(" more")
	assert.Empty(t, external.String(), "one End only restores one level")

	c.Finalize()
	assert.Equal(t, 0, c.Depth())
	stream.Printf("free")
	assert.Equal(t, "free", external.String())
}

func TestCapture_Discard(t *testing.T) {
	c, stream, _ := newTestCapture(t)

	c.Start()
	stream.Printf("gone")
	c.Discard()

	_, ok := c.Buffer()
	assert.False(t, ok)
}

func TestCapture_MaxBytes(t *testing.T) {
	c, stream, _ := newTestCapture(t, WithMaxBytes(4))

	c.Start()
	stream.Printf("abcdefgh")

	text, _ := c.Buffer()
	assert.Equal(t, "efgh", text)
	assert.Equal(t, int64(4), c.Dropped())

	c.Discard()
	assert.Zero(t, c.Dropped())
}

func TestNew_DefaultsToStdout(t *testing.T) {
	c := New()
	assert.Same(t, Stdout, c.Stream())
	assert.False(t, c.Tee())
}
