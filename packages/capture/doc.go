// Package capture intercepts the process-wide output stream while tests run.
//
// It provides:
//   - Stream: a swappable io.Writer standing in for standard output
//   - Capture: a stack of redirection frames over a Stream
//   - Proxy and Tee: fan-out of a call to an ordered list of targets
//   - Buffer: the in-memory sink that collects a frame's output
//
// Only Capture changes where a Stream writes. Start pushes the active
// destination and installs a fresh Buffer, End pops it again, and Finalize
// drains the stack so the original destination is always restored.
package capture
