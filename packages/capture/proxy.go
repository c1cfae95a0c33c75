package capture

import "io"

// Proxy forwards an operation to a fixed, ordered list of targets.
type Proxy[T any] struct {
	targets []T
}

// NewProxy creates a proxy over targets. The slice is copied.
func NewProxy[T any](targets ...T) *Proxy[T] {
	return &Proxy[T]{targets: append([]T(nil), targets...)}
}

// Targets returns the proxied targets in call order.
func (p *Proxy[T]) Targets() []T {
	return append([]T(nil), p.targets...)
}

// Each calls fn on every target in order.
func (p *Proxy[T]) Each(fn func(T)) {
	for _, t := range p.targets {
		fn(t)
	}
}

// Call invokes fn on every target of p in order and returns the result of the
// last invocation. Earlier results are discarded.
func Call[T, R any](p *Proxy[T], fn func(T) R) R {
	var ret R
	p.Each(func(t T) { ret = fn(t) })
	return ret
}

// Call2 is Call for operations returning two values, such as Write.
func Call2[T, R1, R2 any](p *Proxy[T], fn func(T) (R1, R2)) (R1, R2) {
	var r1 R1
	var r2 R2
	p.Each(func(t T) { r1, r2 = fn(t) })
	return r1, r2
}

// TeeWriter broadcasts writes to several writers.
type TeeWriter struct {
	*Proxy[io.Writer]
}

// Tee returns a writer that delivers every write to each of writers, in order.
// Unlike io.MultiWriter it does not stop at the first error: every writer sees
// every write and the last writer's result is returned.
func Tee(writers ...io.Writer) *TeeWriter {
	return &TeeWriter{Proxy: NewProxy(writers...)}
}

func (t *TeeWriter) Write(p []byte) (int, error) {
	return Call2(t.Proxy, func(w io.Writer) (int, error) {
		return w.Write(p)
	})
}

func (t *TeeWriter) WriteString(s string) (int, error) {
	return Call2(t.Proxy, func(w io.Writer) (int, error) {
		return io.WriteString(w, s)
	})
}
