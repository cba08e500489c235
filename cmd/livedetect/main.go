// Command livedetect runs real-time object detection on a camera or video
// stream and overlays the resulting boxes on screen.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/labels"
	"github.com/nvr-ai/go-detect/postprocess"
)

const (
	// defaultDeviceID is the video capture device used when no video file
	// is given.
	defaultDeviceID = 0
)

func main() {
	var (
		modelPath     string
		labelPath     string
		libraryPath   string
		videoPath     string
		deviceID      int
		confidence    float64
		iou           float64
		providerField string
		showWindow    bool
	)
	flag.StringVar(&modelPath, "model", "models/yolov8n.onnx", "Path to ONNX detection model")
	flag.StringVar(&labelPath, "labels", "models/coco.names", "Path to newline-delimited label file")
	flag.StringVar(&libraryPath, "lib", "", "Path to the onnxruntime shared library (empty for platform default)")
	flag.StringVar(&videoPath, "video", "", "Video file to process instead of a camera")
	flag.IntVar(&deviceID, "device", defaultDeviceID, "Camera device id")
	flag.Float64Var(&confidence, "confidence", float64(postprocess.DefaultConfidenceThreshold), "Confidence threshold")
	flag.Float64Var(&iou, "iou", float64(postprocess.DefaultIoUThreshold), "NMS IoU threshold")
	flag.StringVar(&providerField, "providers", "cpu", "Comma-separated execution providers in priority order (cpu, coreml, openvino)")
	flag.BoolVar(&showWindow, "show-window", true, "Show the visualization window")
	flag.Parse()

	table, err := labels.Load(labelPath)
	if err != nil {
		log.Fatalf("loading labels: %v", err)
	}

	cfg := inference.DefaultONNXConfig(modelPath)
	cfg.LibraryPath = libraryPath
	cfg.Providers = parseProviders(providerField)
	// numChannel is 4 geometry channels plus one per class.
	cfg.OutputShape = inference.Shape{1, int64(4 + table.Len()), cfg.OutputShape[2]}

	engine, err := inference.NewONNXEngine(cfg)
	if err != nil {
		log.Fatalf("initializing inference engine: %v", err)
	}
	log.Printf("engine ready, provider=%s model=%s classes=%d", engine.Provider(), modelPath, table.Len())

	det, err := detector.New(engine, table, detector.Config{
		ConfidenceThreshold: float32(confidence),
		IoUThreshold:        float32(iou),
	})
	if err != nil {
		log.Fatalf("initializing detector: %v", err)
	}
	defer det.Close()

	var webcam *gocv.VideoCapture
	if videoPath != "" {
		webcam, err = gocv.OpenVideoCapture(videoPath)
		if err != nil {
			log.Fatalf("opening video file %s: %v", videoPath, err)
		}
		log.Printf("processing video: %s", videoPath)
	} else {
		webcam, err = gocv.OpenVideoCapture(deviceID)
		if err != nil {
			log.Fatalf("opening capture device %d: %v", deviceID, err)
		}
		log.Printf("reading camera device: %d", deviceID)
	}
	defer webcam.Close()

	var window *gocv.Window
	if showWindow {
		window = gocv.NewWindow("Live Detection")
		defer window.Close()
	}

	sink := &overlaySink{}

	// One dedicated worker runs the pipeline serially. The 1-deep channel
	// keeps only the newest frame: when capture outpaces inference the
	// pending stale frame is replaced rather than queued.
	frames := make(chan image.Image, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for frame := range frames {
			if err := det.DetectImage(frame, sink); err != nil {
				log.Printf("detection failed: %v", err)
			}
		}
	}()

	img := gocv.NewMat()
	defer img.Close()

	frameCount := 0
	fps := 0.0
	lastTime := time.Now()

	for {
		if ok := webcam.Read(&img); !ok {
			if videoPath != "" {
				log.Printf("end of video file: %s", videoPath)
			} else {
				log.Printf("device closed: %d", deviceID)
			}
			break
		}
		if img.Empty() {
			continue
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		frame, err := img.ToImage()
		if err != nil {
			log.Printf("converting frame: %v", err)
			continue
		}
		offerFrame(frames, frame)

		boxes, detElapsed := sink.Latest()
		drawBoxes(&img, boxes)

		status := fmt.Sprintf("FPS: %.1f | Objects: %d | Inference: %.1fms",
			fps, len(boxes), float64(detElapsed.Microseconds())/1000.0)
		gocv.PutText(&img, status, image.Pt(10, 30), gocv.FontHersheyPlain, 1.2,
			color.RGBA{R: 255, G: 255, B: 255, A: 0}, 2)

		if showWindow {
			window.IMShow(img)
			window.WaitKey(1)
		}
	}

	close(frames)
	wg.Wait()
}

// offerFrame hands a frame to the worker, dropping the pending frame when
// one is already waiting. Only the single capture loop sends on the
// channel, so the drain-then-send below cannot block.
func offerFrame(frames chan image.Image, frame image.Image) {
	select {
	case frames <- frame:
	default:
		select {
		case <-frames:
		default:
		}
		frames <- frame
	}
}

// parseProviders maps the comma-separated flag value onto provider
// constants, defaulting to CPU for anything unrecognized.
func parseProviders(field string) []inference.Provider {
	var providers []inference.Provider
	for _, name := range strings.Split(field, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "coreml":
			providers = append(providers, inference.ProviderCoreML)
		case "openvino":
			providers = append(providers, inference.ProviderOpenVINO)
		case "cpu", "":
			providers = append(providers, inference.ProviderCPU)
		default:
			log.Printf("unknown execution provider %q, ignoring", name)
		}
	}
	if len(providers) == 0 {
		providers = []inference.Provider{inference.ProviderCPU}
	}
	return providers
}

// drawBoxes renders normalized boxes onto the frame in pixel space.
func drawBoxes(img *gocv.Mat, boxes []postprocess.BoundingBox) {
	if len(boxes) == 0 {
		return
	}
	width := float32(img.Cols())
	height := float32(img.Rows())
	green := color.RGBA{G: 255, A: 0}

	for _, b := range boxes {
		rect := image.Rect(
			int(b.Box.X1*width), int(b.Box.Y1*height),
			int(b.Box.X2*width), int(b.Box.Y2*height),
		)
		gocv.Rectangle(img, rect, green, 2)
		label := fmt.Sprintf("%s %.2f", b.Label, b.Confidence)
		gocv.PutText(img, label, rect.Min, gocv.FontHersheyPlain, 1.0, green, 2)
	}
}

// overlaySink keeps the most recent pipeline outcome for the render loop.
type overlaySink struct {
	mu      sync.Mutex
	boxes   []postprocess.BoundingBox
	elapsed time.Duration
}

func (s *overlaySink) OnDetect(boxes []postprocess.BoundingBox, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes = boxes
	s.elapsed = elapsed
}

func (s *overlaySink) OnEmptyDetect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes = nil
	s.elapsed = 0
}

// Latest returns the boxes and elapsed time of the most recent invocation.
func (s *overlaySink) Latest() ([]postprocess.BoundingBox, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boxes, s.elapsed
}
