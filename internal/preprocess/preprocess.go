// Package preprocess turns an image file into the NHWC input tensor a
// classification model expects.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/SyedDaiam9101/image-predict/internal/inference"
)

// ErrImageDecode is returned when an image is missing, unreadable or in an
// unsupported format.
var ErrImageDecode = errors.New("image decode failed")

// Channels is the fixed channel count of prepared tensors.
const Channels = 3

// Options controls resampling and the element type of the prepared tensor.
type Options struct {
	Interpolation resize.InterpolationFunction
	DataType      inference.DataType
}

// DefaultOptions resamples bicubically into a uint8 tensor.
func DefaultOptions() Options {
	return Options{
		Interpolation: resize.Bicubic,
		DataType:      inference.Uint8,
	}
}

var interpolations = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// ParseInterpolation maps a name such as "bicubic" to a resize filter.
func ParseInterpolation(name string) (resize.InterpolationFunction, error) {
	f, ok := interpolations[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown interpolation %q", name)
	}
	return f, nil
}

// Decode opens and decodes the image at path.
func Decode(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrImageDecode, path, err)
	}
	return img, format, nil
}

// Prepare decodes the image at path and converts it with PrepareImage.
func Prepare(path string, width, height int, opts Options) (*inference.Tensor, error) {
	img, _, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return PrepareImage(img, width, height, opts)
}

// PrepareImage resizes img to exactly width x height, ignoring aspect ratio,
// forces three RGB channels and adds a leading batch dimension. Pixel values
// are raw 0..255 intensities; no normalization is applied.
func PrepareImage(img image.Image, width, height int, opts Options) (*inference.Tensor, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: image is nil", ErrImageDecode)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid target size %dx%d", ErrImageDecode, width, height)
	}

	resized := resize.Resize(uint(width), uint(height), img, opts.Interpolation)

	n := height * width * Channels
	t := &inference.Tensor{
		Shape:    []int64{1, int64(height), int64(width), Channels},
		DataType: opts.DataType,
	}
	switch opts.DataType {
	case inference.Uint8:
		t.Uint8 = make([]uint8, n)
	case inference.Float32:
		t.Float32 = make([]float32, n)
	default:
		return nil, fmt.Errorf("%w: unsupported tensor type %s", ErrImageDecode, opts.DataType)
	}

	b := resized.Bounds()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl := rgb(resized.At(b.Min.X+x, b.Min.Y+y))
			i := (y*width + x) * Channels
			if t.Uint8 != nil {
				t.Uint8[i], t.Uint8[i+1], t.Uint8[i+2] = r, g, bl
			} else {
				t.Float32[i], t.Float32[i+1], t.Float32[i+2] = float32(r), float32(g), float32(bl)
			}
		}
	}
	return t, nil
}

// rgb drops alpha from c without premultiplying; gray values land on all
// three channels.
func rgb(c color.Color) (r, g, b uint8) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return n.R, n.G, n.B
}
