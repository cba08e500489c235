// Package preprocess - Image to normalized input-tensor conversion.
package preprocess

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Normalizer scales raw pixel values into the range the inference engine
// expects: v -> (v - Mean) / Std per channel value.
type Normalizer struct {
	Mean float32
	Std  float32
}

// DefaultNormalizer returns the mean=0, std=255 scaling that maps 8-bit
// pixels onto [0, 1].
func DefaultNormalizer() Normalizer {
	return Normalizer{Mean: 0, Std: 255}
}

// ToTensor resizes img to width x height and fills a CHW float32 tensor
// (three planes of width*height, R then G then B) with normalized values.
//
// Arguments:
//   - img: The source frame.
//   - width, height: The engine's declared input dimensions.
//
// Returns:
//   - []float32: Tensor of length 3*width*height.
//   - error: Error when the target dimensions are unusable.
func (n Normalizer) ToTensor(img image.Image, width, height int) ([]float32, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid input dimensions %dx%d", width, height)
	}
	if n.Std == 0 {
		return nil, errors.New("normalizer std must be non-zero")
	}

	channelSize := width * height
	data := make([]float32, channelSize*3)
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	resized := resize.Resize(uint(width), uint(height), img, resize.Lanczos3)

	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			red[i] = (float32(r>>8) - n.Mean) / n.Std
			green[i] = (float32(g>>8) - n.Mean) / n.Std
			blue[i] = (float32(b>>8) - n.Mean) / n.Std
			i++
		}
	}

	return data, nil
}
