package capture

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Stdout is the process-wide output stream tests write to. It starts out
// pointing at os.Stdout.
var Stdout = NewStream(os.Stdout)

// Stream is an io.Writer whose destination can be redirected by a Capture.
type Stream struct {
	mu   sync.RWMutex
	dest io.Writer
}

// NewStream creates a stream writing to dest. A nil dest discards output.
func NewStream(dest io.Writer) *Stream {
	if dest == nil {
		dest = io.Discard
	}
	return &Stream{dest: dest}
}

// Current returns the writer the stream is delivering to right now.
func (s *Stream) Current() io.Writer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dest
}

// swap installs w as the destination and returns the previous one.
func (s *Stream) swap(w io.Writer) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.dest
	s.dest = w
	return prev
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.Current().Write(p)
}

func (s *Stream) WriteString(str string) (int, error) {
	return io.WriteString(s.Current(), str)
}

// Printf formats according to a format specifier and writes to the stream.
func (s *Stream) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s, format, args...)
}

// Println writes its operands followed by a newline to the stream.
func (s *Stream) Println(args ...any) {
	_, _ = fmt.Fprintln(s, args...)
}
