package inference

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider selects an ONNX Runtime execution provider. Providers are
// attempted in the order configured; plain CPU execution is always
// available as the terminal fallback, so an unsupported accelerator
// degrades instead of failing setup.
type Provider string

const (
	// ProviderCPU is the default execution provider, always available.
	ProviderCPU Provider = "cpu"
	// ProviderCoreML enables the CoreML execution provider on Apple hardware.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO enables the OpenVINO execution provider.
	ProviderOpenVINO Provider = "openvino"
)

// ONNXConfig configures an ONNX Runtime engine.
type ONNXConfig struct {
	// ModelPath is the .onnx model file.
	ModelPath string
	// LibraryPath overrides the onnxruntime shared-library location.
	// Empty selects a platform default.
	LibraryPath string
	// InputShape and OutputShape are the model's fixed tensor shapes.
	// Defaults match a 640x640 YOLO-family export.
	InputShape  Shape
	OutputShape Shape
	// InputName and OutputName are the model's tensor names.
	InputName  string
	OutputName string
	// Providers are tried in order; CPU is appended when absent.
	Providers []Provider
	// IntraOpThreads and InterOpThreads bound onnxruntime parallelism.
	// Zero keeps the runtime default.
	IntraOpThreads int
	InterOpThreads int
}

// DefaultONNXConfig returns a configuration for a standard 640x640
// COCO-class detection model running on CPU.
func DefaultONNXConfig(modelPath string) ONNXConfig {
	return ONNXConfig{
		ModelPath:      modelPath,
		InputShape:     Shape{1, 3, 640, 640},
		OutputShape:    Shape{1, 84, 8400},
		InputName:      "images",
		OutputName:     "output0",
		Providers:      []Provider{ProviderCPU},
		IntraOpThreads: 4,
		InterOpThreads: 2,
	}
}

// ONNXEngine runs a detection model through ONNX Runtime. One engine owns
// one session plus its pre-allocated input and output tensors; Invoke is
// serialized internally.
type ONNXEngine struct {
	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	inShape  Shape
	outShape Shape
	provider Provider
	stats    Stats
}

// NewONNXEngine initializes ONNX Runtime and builds a session, walking the
// configured provider list until one initializes. Failure of every
// execution mode is a fatal setup error.
func NewONNXEngine(cfg ONNXConfig) (*ONNXEngine, error) {
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = defaultSharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return nil, errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	if len(cfg.InputShape) == 0 || len(cfg.OutputShape) == 0 {
		return nil, errors.New("input and output shapes are required")
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrap(err, "initializing ORT environment")
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	providers := cfg.Providers
	if len(providers) == 0 {
		providers = []Provider{ProviderCPU}
	}
	if providers[len(providers)-1] != ProviderCPU {
		providers = append(providers, ProviderCPU)
	}

	var session *ort.AdvancedSession
	var active Provider
	var lastErr error
	for _, provider := range providers {
		session, lastErr = newSession(cfg, provider, inputTensor, outputTensor)
		if lastErr == nil {
			active = provider
			break
		}
	}
	if session == nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(lastErr, "no execution provider could initialize")
	}

	return &ONNXEngine{
		session:  session,
		input:    inputTensor,
		output:   outputTensor,
		inShape:  cfg.InputShape,
		outShape: cfg.OutputShape,
		provider: active,
	}, nil
}

// newSession builds one session attempt for a single execution provider.
func newSession(cfg ONNXConfig, provider Provider, input, output *ort.Tensor[float32]) (*ort.AdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating ORT session options")
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		options.SetIntraOpNumThreads(cfg.IntraOpThreads)
	}
	if cfg.InterOpThreads > 0 {
		options.SetInterOpNumThreads(cfg.InterOpThreads)
	}
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	switch provider {
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return nil, errors.Wrap(err, "enabling CoreML")
		}
	case ProviderOpenVINO:
		err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
		})
		if err != nil {
			return nil, errors.Wrap(err, "enabling OpenVINO")
		}
	case ProviderCPU:
		// Plain session options.
	default:
		return nil, errors.Errorf("unsupported execution provider %q", provider)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "creating ORT session with provider %q", provider)
	}
	return session, nil
}

// InputShape returns the declared input shape.
func (e *ONNXEngine) InputShape() Shape { return e.inShape }

// OutputShape returns the declared output shape.
func (e *ONNXEngine) OutputShape() Shape { return e.outShape }

// Provider returns the execution provider the session settled on.
func (e *ONNXEngine) Provider() Provider { return e.provider }

// Metrics exposes per-call latency tracking.
func (e *ONNXEngine) Metrics() *Stats { return &e.stats }

// Invoke copies input into the session's input tensor, runs the model, and
// returns a copy of the output tensor.
func (e *ONNXEngine) Invoke(input []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dst := e.input.GetData()
	if len(input) != len(dst) {
		return nil, errors.Errorf("input has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	start := time.Now()
	if err := e.session.Run(); err != nil {
		return nil, errors.Wrap(err, "running inference")
	}
	e.stats.Record(time.Since(start))

	src := e.output.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

// Close destroys the session and its tensors.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return nil
}

// defaultSharedLibPath mirrors the onnxruntime distribution layout under
// third_party/ for the current platform.
func defaultSharedLibPath() string {
	if runtime.GOOS == "windows" {
		return "third_party/onnxruntime.dll"
	}
	if runtime.GOOS == "darwin" {
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.dylib"
		}
		return "third_party/onnxruntime_amd64.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "third_party/onnxruntime_arm64.so"
	}
	return "third_party/onnxruntime.so"
}
