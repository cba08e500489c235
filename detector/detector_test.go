package detector

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/labels"
	"github.com/nvr-ai/go-detect/postprocess"
)

// recordingSink captures pipeline outcomes for assertions.
type recordingSink struct {
	boxes   [][]postprocess.BoundingBox
	elapsed []time.Duration
	empty   int
}

func (s *recordingSink) OnDetect(boxes []postprocess.BoundingBox, elapsed time.Duration) {
	s.boxes = append(s.boxes, boxes)
	s.elapsed = append(s.elapsed, elapsed)
}

func (s *recordingSink) OnEmptyDetect() {
	s.empty++
}

// stubEngine lets tests hand the detector arbitrary declared shapes.
type stubEngine struct {
	in, out inference.Shape
}

func (e *stubEngine) InputShape() inference.Shape         { return e.in }
func (e *stubEngine) OutputShape() inference.Shape        { return e.out }
func (e *stubEngine) Invoke([]float32) ([]float32, error) { return nil, nil }
func (e *stubEngine) Close() error                        { return nil }

// outputTensor builds a channel-major [1][numChannel][numElements] tensor.
func outputTensor(numChannel, numElements int, fill func(out []float32)) *tensor.Dense {
	backing := make([]float32, numChannel*numElements)
	if fill != nil {
		fill(backing)
	}
	return tensor.New(tensor.WithShape(1, numChannel, numElements), tensor.WithBacking(backing))
}

// setAnchor writes one anchor's geometry and class scores, channel-major.
func setAnchor(out []float32, numElements, e int, cx, cy, w, h float32, scores ...float32) {
	out[0*numElements+e] = cx
	out[1*numElements+e] = cy
	out[2*numElements+e] = w
	out[3*numElements+e] = h
	for c, s := range scores {
		out[(4+c)*numElements+e] = s
	}
}

var personCar = []string{"person", "car"}

func newTestDetector(t *testing.T, dense *tensor.Dense) (*Detector, *inference.StaticEngine) {
	t.Helper()
	engine, err := inference.NewStaticEngine(inference.Shape{1, 3, 4, 4}, dense)
	require.NoError(t, err)
	d, err := New(engine, labels.NewTable(personCar), DefaultConfig())
	require.NoError(t, err)
	return d, engine
}

func TestDetectReportsSuppressedBoxes(t *testing.T) {
	// Two heavily overlapping anchors; suppression keeps the stronger one.
	dense := outputTensor(6, 2, func(out []float32) {
		setAnchor(out, 2, 0, 0.5, 0.5, 0.2, 0.2, 0.9, 0.1)
		setAnchor(out, 2, 1, 0.52, 0.5, 0.2, 0.2, 0.7, 0.0)
	})
	d, _ := newTestDetector(t, dense)

	sink := &recordingSink{}
	err := d.Detect(make([]float32, 3*4*4), sink)
	require.NoError(t, err)

	require.Len(t, sink.boxes, 1)
	assert.Zero(t, sink.empty)

	boxes := sink.boxes[0]
	require.Len(t, boxes, 1)
	assert.Equal(t, "person", boxes[0].Label)
	assert.InDelta(t, 0.9, boxes[0].Confidence, 0.0001)

	// Elapsed time is wall clock of the whole call.
	require.Len(t, sink.elapsed, 1)
	assert.Greater(t, sink.elapsed[0], time.Duration(0))
}

func TestDetectEmptyPath(t *testing.T) {
	// Every anchor below threshold: the empty path fires, the detection
	// path never does.
	dense := outputTensor(6, 2, func(out []float32) {
		setAnchor(out, 2, 0, 0.5, 0.5, 0.2, 0.2, 0.2, 0.1)
		setAnchor(out, 2, 1, 0.5, 0.5, 0.2, 0.2, 0.1, 0.05)
	})
	d, _ := newTestDetector(t, dense)

	sink := &recordingSink{}
	err := d.Detect(make([]float32, 3*4*4), sink)
	require.NoError(t, err)

	assert.Equal(t, 1, sink.empty)
	assert.Empty(t, sink.boxes)
}

func TestDetectEngineFailure(t *testing.T) {
	dense := outputTensor(6, 2, nil)
	d, engine := newTestDetector(t, dense)
	engine.FailWith(errors.New("delegate lost"))

	sink := &recordingSink{}
	err := d.Detect(make([]float32, 3*4*4), sink)
	assert.Error(t, err)

	// Failures never reach the sink.
	assert.Empty(t, sink.boxes)
	assert.Zero(t, sink.empty)
}

func TestNewSetupValidation(t *testing.T) {
	table := labels.NewTable(personCar)

	_, err := New(nil, table, DefaultConfig())
	assert.Error(t, err)

	// Output shape must be [1, numChannel, numElements].
	_, err = New(&stubEngine{in: inference.Shape{1, 3, 4, 4}, out: inference.Shape{6, 2}}, table, DefaultConfig())
	assert.Error(t, err)

	// Input shape must be [1, channels, height, width].
	_, err = New(&stubEngine{in: inference.Shape{3, 4, 4}, out: inference.Shape{1, 6, 2}}, table, DefaultConfig())
	assert.Error(t, err)

	// Label count must match the model's class channels: 6-4=2 classes
	// against a 3-entry table is a broken deployment, not a warning.
	_, err = New(
		&stubEngine{in: inference.Shape{1, 3, 4, 4}, out: inference.Shape{1, 6, 2}},
		labels.NewTable([]string{"person", "car", "dog"}),
		DefaultConfig(),
	)
	assert.Error(t, err)
}

func TestDetectImage(t *testing.T) {
	dense := outputTensor(6, 2, func(out []float32) {
		setAnchor(out, 2, 0, 0.5, 0.5, 0.4, 0.4, 0.8, 0.1)
	})
	d, _ := newTestDetector(t, dense)

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}

	sink := &recordingSink{}
	err := d.DetectImage(img, sink)
	require.NoError(t, err)

	require.Len(t, sink.boxes, 1)
	assert.Equal(t, "person", sink.boxes[0][0].Label)

	w, h := d.InputSize()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
}

func TestDetectIsRepeatable(t *testing.T) {
	// Configuration is fixed at setup; repeated calls over the same tensor
	// produce identical results.
	dense := outputTensor(6, 2, func(out []float32) {
		setAnchor(out, 2, 0, 0.5, 0.5, 0.2, 0.2, 0.9, 0.1)
		setAnchor(out, 2, 1, 0.3, 0.3, 0.2, 0.2, 0.6, 0.0)
	})
	d, _ := newTestDetector(t, dense)

	first := &recordingSink{}
	second := &recordingSink{}
	require.NoError(t, d.Detect(make([]float32, 3*4*4), first))
	require.NoError(t, d.Detect(make([]float32, 3*4*4), second))

	require.Len(t, first.boxes, 1)
	require.Len(t, second.boxes, 1)
	assert.Equal(t, first.boxes[0], second.boxes[0])
}
