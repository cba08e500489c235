// Package inference - Inference engine interface and implementations.
package inference

// Shape describes a tensor's dimensions. Engines expose their declared
// input and output shapes at setup time so callers can derive tensor
// dimensions once; the shapes never change for the engine's lifetime.
type Shape []int64

// Elems returns the total number of values a tensor of this shape holds.
func (s Shape) Elems() int {
	n := 1
	for _, d := range s {
		n *= int(d)
	}
	return n
}

// Engine is an opaque inference backend. It accepts a normalized float
// tensor matching InputShape and produces an output tensor matching
// OutputShape. Implementations are used by a single worker at a time;
// Invoke calls are serialized by the caller.
type Engine interface {
	// InputShape returns the declared input shape, [1, channels, height, width].
	InputShape() Shape
	// OutputShape returns the declared output shape, [1, numChannel, numElements].
	OutputShape() Shape
	// Invoke runs one inference pass. The returned slice is owned by the
	// caller and not reused by the engine.
	Invoke(input []float32) ([]float32, error)
	// Close releases backend resources.
	Close() error
}
