// Package classifier turns uploaded leaf images into a top-1 label and
// confidence using a loaded model runner.
package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"mime"
	"strings"

	"github.com/Brownie44l1/plant-disease-api/internal/model"
)

var (
	// ErrModelUnavailable means no classifier is loaded.
	ErrModelUnavailable = errors.New("model not loaded")
	// ErrInferenceFailure covers bad input images and runtime failures.
	ErrInferenceFailure = errors.New("inference failed")
	// ErrInvalidTensor is returned by ClassifyTensor for wrongly sized input.
	ErrInvalidTensor = errors.New("invalid input tensor")
)

// DefaultMaxPixels caps width*height of an uploaded image before it is
// decoded, matching Pillow's decompression bomb limit.
const DefaultMaxPixels = 89_478_485

// probability values may overshoot 1 by float rounding in softmax layers.
const probabilitySlack = 1e-4

var supportedTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/jpg":  {},
	"image/gif":  {},
}

// Error is an inference failure at a named stage. It matches
// ErrInferenceFailure with errors.Is.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrInferenceFailure, e.Err}
}

func failure(stage string, err error) error {
	return &Error{Stage: stage, Err: err}
}

// Prediction is the top-1 result of one classification.
type Prediction struct {
	Label         string             `json:"class"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"predictions,omitempty"`
}

// Adapter wraps an optional model runner. An adapter without a runner is
// valid and reports ErrModelUnavailable for every classification.
type Adapter struct {
	runner    model.Runner
	meta      model.Metadata
	loadErr   error
	maxPixels int64
}

// New returns an adapter around a loaded runner.
func New(runner model.Runner, meta model.Metadata) *Adapter {
	return &Adapter{runner: runner, meta: meta, maxPixels: DefaultMaxPixels}
}

// Unavailable returns an adapter in the not-loaded state. cause is kept
// for reporting and may be nil.
func Unavailable(meta model.Metadata, cause error) *Adapter {
	return &Adapter{meta: meta, loadErr: cause, maxPixels: DefaultMaxPixels}
}

// LimitPixels sets the largest width*height Classify will decode. n <= 0
// restores DefaultMaxPixels. Call it before the adapter is shared.
func (a *Adapter) LimitPixels(n int64) {
	if n <= 0 {
		n = DefaultMaxPixels
	}
	a.maxPixels = n
}

// Loaded reports whether a runner is present.
func (a *Adapter) Loaded() bool { return a.runner != nil }

// LoadError is the reason the model failed to load, if any.
func (a *Adapter) LoadError() error { return a.loadErr }

// Metadata describes the model input and label set.
func (a *Adapter) Metadata() model.Metadata { return a.meta }

// Labels returns the ordered label set of the model output.
func (a *Adapter) Labels() []string {
	return append([]string(nil), a.meta.Classes...)
}

// Classify decodes data and classifies it. mimeType may be empty, in which
// case the format is detected from the content.
func (a *Adapter) Classify(ctx context.Context, data []byte, mimeType string) (Prediction, error) {
	if !a.Loaded() {
		return Prediction{}, a.unavailable()
	}
	if err := checkMediaType(mimeType); err != nil {
		return Prediction{}, failure("decode", err)
	}
	if err := a.checkDimensions(data); err != nil {
		return Prediction{}, failure("decode", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Prediction{}, failure("decode", err)
	}
	return a.ClassifyImage(ctx, img)
}

// ClassifyImage classifies an already decoded image.
func (a *Adapter) ClassifyImage(ctx context.Context, img image.Image) (Prediction, error) {
	if !a.Loaded() {
		return Prediction{}, a.unavailable()
	}
	if img == nil || img.Bounds().Empty() {
		return Prediction{}, failure("preprocess", errors.New("empty image"))
	}
	input := Preprocess(img, a.meta.ImageSize, a.meta.Layout)
	return a.predict(ctx, input)
}

// ClassifyTensor classifies a preprocessed tensor laid out per Metadata.
func (a *Adapter) ClassifyTensor(ctx context.Context, tensor []float32) (Prediction, error) {
	if !a.Loaded() {
		return Prediction{}, a.unavailable()
	}
	if want := a.meta.InputSize(); len(tensor) != want {
		return Prediction{}, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidTensor, want, len(tensor))
	}
	return a.predict(ctx, tensor)
}

// Close releases the runner.
func (a *Adapter) Close() error {
	if a.runner == nil {
		return nil
	}
	return a.runner.Close()
}

func (a *Adapter) predict(ctx context.Context, input []float32) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	output, err := a.runner.Run(input)
	if err != nil {
		return Prediction{}, failure("predict", err)
	}
	return selectTop(output, a.meta.Classes)
}

// checkDimensions reads only the image header so oversized images are
// rejected before any pixel buffer is allocated.
func (a *Adapter) checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > a.maxPixels {
		return fmt.Errorf("image is %dx%d, more than the %d pixel limit", cfg.Width, cfg.Height, a.maxPixels)
	}
	return nil
}

func (a *Adapter) unavailable() error {
	if a.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, a.loadErr)
	}
	return ErrModelUnavailable
}

// selectTop pairs output with labels and picks the argmax. Ties go to the
// lowest index.
func selectTop(output []float32, labels []string) (Prediction, error) {
	if len(labels) == 0 || len(output) != len(labels) {
		return Prediction{}, failure("output", fmt.Errorf("model returned %d scores for %d labels", len(output), len(labels)))
	}

	best := 0
	probs := make(map[string]float64, len(labels))
	for i, v := range output {
		p := float64(v)
		if math.IsNaN(p) || p < 0 || p > 1+probabilitySlack {
			return Prediction{}, failure("output", fmt.Errorf("score %v for %s is not a probability", p, labels[i]))
		}
		p = math.Min(p, 1)
		probs[labels[i]] = p
		if v > output[best] {
			best = i
		}
	}

	return Prediction{
		Label:         labels[best],
		Confidence:    probs[labels[best]],
		Probabilities: probs,
	}, nil
}

func checkMediaType(mimeType string) error {
	if strings.TrimSpace(mimeType) == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fmt.Errorf("bad content type %q: %w", mimeType, err)
	}
	if _, ok := supportedTypes[mediaType]; !ok {
		return fmt.Errorf("unsupported content type %q", mediaType)
	}
	return nil
}
