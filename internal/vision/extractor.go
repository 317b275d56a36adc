package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/attend/internal/models"
)

// Extractor turns aligned face images into descriptor vectors using an ONNX
// embedding model. It is optional: the service accepts raw descriptors from
// capture devices, and only needs the extractor when clients upload images.
type Extractor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewExtractor loads the ONNX embedding model. The model takes a 112x112
// aligned face crop and emits a descriptor of models.DescriptorDim floats.
func NewExtractor(modelPath string) (*Extractor, error) {
	inputW, inputH := 112, 112

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(models.DescriptorDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"descriptor"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create extractor session: %w", err)
	}

	return &Extractor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// EmbedImage extracts a descriptor from an uploaded face image. Returns the
// descriptor and a quality score in [0, 1].
func (e *Extractor) EmbedImage(imageData []byte) ([]float64, float64, error) {
	img, err := jpeg.Decode(bytes.NewReader(imageData))
	if err != nil {
		// Try other formats
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, 0, fmt.Errorf("decode image: %w", err)
		}
	}

	input := imageToFloat32CHW(img, e.inputW, e.inputH,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	copy(e.inputTensor.GetData(), input)

	if err := e.session.Run(); err != nil {
		return nil, 0, fmt.Errorf("run extractor: %w", err)
	}

	raw := e.outputTensor.GetData()

	// L2 normalize
	var sum float64
	for _, x := range raw {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, 0, fmt.Errorf("model produced zero descriptor")
	}

	descriptor := make([]float64, models.DescriptorDim)
	for i, x := range raw[:models.DescriptorDim] {
		descriptor[i] = float64(x) / norm
	}

	return descriptor, imageQuality(img), nil
}

func (e *Extractor) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// imageQuality scores the image by luminance spread. Flat images (heavy blur,
// over/underexposure) score low; the score feeds template selection, not
// matching.
func imageQuality(img image.Image) float64 {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	// Sample a coarse grid rather than every pixel.
	const grid = 32
	var values []float64
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x := bounds.Min.X + gx*w/grid
			y := bounds.Min.Y + gy*h/grid
			r, g, b, _ := img.At(x, y).RGBA()
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			values = append(values, lum)
		}
	}

	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	// Map standard deviation to [0, 1]; ~64 covers normal photos.
	q := math.Sqrt(variance) / 64.0
	if q > 1 {
		q = 1
	}
	return q
}

// imageToFloat32CHW converts an image to CHW float32 format with normalization:
//
//	pixel = (pixel - mean) / std
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := resizeImage(img, targetW, targetH)
	bounds := resized.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			// Convert from 16-bit to 8-bit
			rf := float32(r >> 8)
			gf := float32(g >> 8)
			bf := float32(b >> 8)

			// CHW layout: [C][H][W]
			idx := y*w + x
			data[0*h*w+idx] = (rf - mean[0]) / std[0] // R
			data[1*h*w+idx] = (gf - mean[1]) / std[1] // G
			data[2*h*w+idx] = (bf - mean[2]) / std[2] // B
		}
	}

	return data
}

// resizeImage performs nearest-neighbour resize (fast, good enough for ML input).
func resizeImage(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))

	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			srcY := bounds.Min.Y + y*srcH/targetH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}

	return dst
}
