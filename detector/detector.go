// Package detector - Pipeline façade sequencing inference, decode, and
// suppression for one frame at a time.
package detector

import (
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/labels"
	"github.com/nvr-ai/go-detect/postprocess"
	"github.com/nvr-ai/go-detect/preprocess"
)

// Config fixes the pipeline's thresholds at setup time. Values are never
// re-read per call.
type Config struct {
	// ConfidenceThreshold gates candidate boxes at decode; <= 0 selects
	// the 0.3 default.
	ConfidenceThreshold float32
	// IoUThreshold gates suppression; <= 0 selects the 0.5 default.
	IoUThreshold float32
	// Normalizer scales pixels for DetectImage. The zero value selects
	// mean=0, std=255.
	Normalizer preprocess.Normalizer
}

// DefaultConfig returns the standard 0.3 confidence / 0.5 IoU thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: postprocess.DefaultConfidenceThreshold,
		IoUThreshold:        postprocess.DefaultIoUThreshold,
		Normalizer:          preprocess.DefaultNormalizer(),
	}
}

// Sink receives the outcome of one pipeline invocation. Exactly one of its
// methods is called per successful Detect.
type Sink interface {
	// OnDetect delivers the suppressed box list, never empty, together
	// with the wall-clock duration of the full inference+decode+suppress
	// call. The caller owns the slice.
	OnDetect(boxes []postprocess.BoundingBox, elapsed time.Duration)
	// OnEmptyDetect signals that decoding produced zero candidates - a
	// valid "nothing seen" outcome, distinct from any failure.
	OnEmptyDetect()
}

// Detector runs the detection pipeline: engine inference, tensor decode,
// confidence filtering, and greedy NMS. All configuration is immutable
// after New; each Detect call is independent and the detector holds no
// state between calls, so concurrent readers of the configuration are
// safe even though invocations themselves are expected to be serial.
type Detector struct {
	engine  inference.Engine
	decoder *postprocess.Decoder
	nms     postprocess.NMSConfig
	norm    preprocess.Normalizer
	inputW  int
	inputH  int
}

// New derives tensor dimensions from the engine's declared shapes and
// validates them against the label table. Any inconsistency - malformed
// shapes or a label count that does not match the model's class channels -
// is a fatal setup error.
//
// Arguments:
//   - engine: The inference backend, already initialized.
//   - table: Ordered class names; length must equal numChannel-4.
//   - cfg: Threshold configuration.
//
// Returns:
//   - *Detector: The ready pipeline.
//   - error: A setup error; the pipeline cannot run.
func New(engine inference.Engine, table *labels.Table, cfg Config) (*Detector, error) {
	if engine == nil {
		return nil, errors.New("detector requires an inference engine")
	}

	out := engine.OutputShape()
	if len(out) != 3 || out[0] != 1 {
		return nil, errors.Errorf("engine output shape %v is not [1, numChannel, numElements]", out)
	}
	numChannel := int(out[1])
	numElements := int(out[2])

	decoder, err := postprocess.NewDecoder(table, numChannel, numElements, cfg.ConfidenceThreshold)
	if err != nil {
		return nil, errors.Wrap(err, "configuring decoder")
	}

	in := engine.InputShape()
	if len(in) != 4 || in[0] != 1 {
		return nil, errors.Errorf("engine input shape %v is not [1, channels, height, width]", in)
	}

	iou := cfg.IoUThreshold
	if iou <= 0 {
		iou = postprocess.DefaultIoUThreshold
	}
	norm := cfg.Normalizer
	if norm.Std == 0 {
		norm = preprocess.DefaultNormalizer()
	}

	return &Detector{
		engine:  engine,
		decoder: decoder,
		nms:     postprocess.NMSConfig{IoUThreshold: iou},
		norm:    norm,
		inputW:  int(in[3]),
		inputH:  int(in[2]),
	}, nil
}

// InputSize returns the width and height the engine expects frames to be
// preprocessed to.
func (d *Detector) InputSize() (width, height int) {
	return d.inputW, d.inputH
}

// Detect runs one pipeline pass over an already-normalized input tensor
// and reports the outcome to sink. Errors mean the call produced nothing;
// the sink is not invoked.
func (d *Detector) Detect(input []float32, sink Sink) error {
	start := time.Now()

	output, err := d.engine.Invoke(input)
	if err != nil {
		return errors.Wrap(err, "inference failed")
	}

	candidates, err := d.decoder.Decode(output)
	if err != nil {
		return errors.Wrap(err, "decoding output tensor")
	}

	// Suppression never sees an empty list; "nothing found" takes the
	// dedicated path so callers can tell it apart from a call that never
	// ran.
	if len(candidates) == 0 {
		sink.OnEmptyDetect()
		return nil
	}

	boxes := postprocess.ApplyGreedyNMS(candidates, d.nms)
	sink.OnDetect(boxes, time.Since(start))
	return nil
}

// DetectImage preprocesses a frame to the engine's input shape and runs
// Detect on the result.
func (d *Detector) DetectImage(img image.Image, sink Sink) error {
	input, err := d.norm.ToTensor(img, d.inputW, d.inputH)
	if err != nil {
		return errors.Wrap(err, "preprocessing frame")
	}
	return d.Detect(input, sink)
}

// Close releases the underlying engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
