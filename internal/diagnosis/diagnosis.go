// Package diagnosis joins the classifier and the treatment catalog into the
// request-level operation the HTTP layer and CLI call.
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Brownie44l1/plant-disease-api/internal/classifier"
	"github.com/Brownie44l1/plant-disease-api/internal/metrics"
	"github.com/Brownie44l1/plant-disease-api/internal/treatment"
)

// Classifier is the part of classifier.Adapter the service uses.
type Classifier interface {
	Classify(ctx context.Context, data []byte, mimeType string) (classifier.Prediction, error)
	ClassifyTensor(ctx context.Context, tensor []float32) (classifier.Prediction, error)
	Loaded() bool
}

// Diagnosis is a prediction with its treatment advice.
type Diagnosis struct {
	Prediction classifier.Prediction
	Advice     treatment.Advice
}

// Service is stateless apart from its read-only collaborators and is safe
// for concurrent use.
type Service struct {
	classifier Classifier
	advisor    *treatment.Advisor
	metrics    *metrics.Metrics
	sem        *semaphore.Weighted
}

// Option configures a Service.
type Option func(*Service)

// WithMaxConcurrent bounds the number of classifications in flight. Callers
// beyond the limit wait until a slot frees or their context ends. n <= 0
// means no limit.
func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// New returns a Service. m may be nil.
func New(c Classifier, advisor *treatment.Advisor, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{classifier: c, advisor: advisor, metrics: m}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Advisor returns the treatment advisor.
func (s *Service) Advisor() *treatment.Advisor { return s.advisor }

// ModelLoaded reports whether the classifier can serve predictions.
func (s *Service) ModelLoaded() bool { return s.classifier.Loaded() }

// Diagnose classifies an encoded image and looks up treatment advice.
func (s *Service) Diagnose(ctx context.Context, data []byte, mimeType string) (Diagnosis, error) {
	start := time.Now()
	release, err := s.acquire(ctx)
	if err != nil {
		return s.finish(ctx, classifier.Prediction{}, err, start)
	}
	pred, err := s.classifier.Classify(ctx, data, mimeType)
	release()
	return s.finish(ctx, pred, err, start)
}

// DiagnoseTensor is Diagnose for an already preprocessed tensor.
func (s *Service) DiagnoseTensor(ctx context.Context, tensor []float32) (Diagnosis, error) {
	start := time.Now()
	release, err := s.acquire(ctx)
	if err != nil {
		return s.finish(ctx, classifier.Prediction{}, err, start)
	}
	pred, err := s.classifier.ClassifyTensor(ctx, tensor)
	release()
	return s.finish(ctx, pred, err, start)
}

// Advice looks up treatment advice for a label without classifying.
func (s *Service) Advice(label string, confidence float64) (treatment.Advice, error) {
	return s.advisor.Lookup(label, confidence)
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	if s.sem == nil {
		return func() {}, nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.sem.Release(1) }, nil
}

func (s *Service) finish(ctx context.Context, pred classifier.Prediction, err error, start time.Time) (Diagnosis, error) {
	if err != nil {
		s.observe(statusOf(err), start)
		slog.WarnContext(ctx, "classification failed", "error", err)
		return Diagnosis{}, err
	}

	advice, err := s.advisor.Lookup(pred.Label, pred.Confidence)
	if err != nil {
		s.observe(statusOf(err), start)
		slog.WarnContext(ctx, "treatment lookup failed", "label", pred.Label, "error", err)
		return Diagnosis{}, fmt.Errorf("lookup %s: %w", pred.Label, err)
	}

	s.observe(metrics.StatusSuccess, start)
	if s.metrics != nil {
		s.metrics.ObserveDiagnosis(advice.Label, string(advice.Severity))
	}
	slog.InfoContext(ctx, "diagnosis",
		"label", advice.Label,
		"confidence", advice.Confidence,
		"severity", advice.Severity,
		"duration_ms", time.Since(start).Milliseconds())

	return Diagnosis{Prediction: pred, Advice: advice}, nil
}

func (s *Service) observe(status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObservePrediction(status, time.Since(start))
	}
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, classifier.ErrModelUnavailable):
		return metrics.StatusModelUnavailable
	case errors.Is(err, classifier.ErrInferenceFailure):
		return metrics.StatusInferenceFailure
	case errors.Is(err, treatment.ErrUnknownDisease):
		return metrics.StatusUnknownDisease
	default:
		return metrics.StatusError
	}
}
