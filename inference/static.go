package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// StaticEngine is an in-memory Engine that returns the contents of a fixed
// output tensor on every call. Tests and benchmarks use it to drive the
// pipeline without a model file or the onnxruntime shared library.
type StaticEngine struct {
	inShape  Shape
	outShape Shape
	output   []float32
	err      error
	calls    int
}

// NewStaticEngine wraps a dense float32 tensor as an inference engine. The
// output shape is taken from the tensor itself; it must be rank 3
// ([1, numChannel, numElements]).
func NewStaticEngine(inShape Shape, output *tensor.Dense) (*StaticEngine, error) {
	if output == nil {
		return nil, errors.New("static engine requires an output tensor")
	}
	if output.Dtype() != tensor.Float32 {
		return nil, errors.Errorf("static engine output must be float32, got %v", output.Dtype())
	}
	dims := output.Shape()
	if len(dims) != 3 {
		return nil, errors.Errorf("static engine output must be rank 3, got shape %v", dims)
	}

	outShape := make(Shape, len(dims))
	for i, d := range dims {
		outShape[i] = int64(d)
	}

	data := output.Data().([]float32)
	backing := make([]float32, len(data))
	copy(backing, data)

	return &StaticEngine{
		inShape:  inShape,
		outShape: outShape,
		output:   backing,
	}, nil
}

// FailWith makes every subsequent Invoke return err.
func (e *StaticEngine) FailWith(err error) {
	e.err = err
}

// Calls returns how many times Invoke ran.
func (e *StaticEngine) Calls() int { return e.calls }

// InputShape returns the declared input shape.
func (e *StaticEngine) InputShape() Shape { return e.inShape }

// OutputShape returns the shape of the wrapped tensor.
func (e *StaticEngine) OutputShape() Shape { return e.outShape }

// Invoke returns a copy of the fixed output tensor.
func (e *StaticEngine) Invoke(input []float32) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if want := e.inShape.Elems(); len(input) != want {
		return nil, errors.Errorf("input has %d values, engine expects %d", len(input), want)
	}
	out := make([]float32, len(e.output))
	copy(out, e.output)
	return out, nil
}

// Close is a no-op for the in-memory engine.
func (e *StaticEngine) Close() error { return nil }
