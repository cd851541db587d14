package model

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("model runner closed")

// Backend names accepted by Open.
const (
	BackendONNX   = "onnx"
	BackendTFLite = "tflite"
	BackendNone   = "none"
)

// Runner executes a classifier on one preprocessed input tensor and returns
// the probability vector. Implementations must be safe for concurrent use.
type Runner interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

type Options struct {
	Backend      string
	ModelPath    string
	MetadataPath string
	// RuntimeLibrary is the onnxruntime shared library path. Empty uses the
	// library's default lookup.
	RuntimeLibrary string
	Threads        int
}

// Open loads the configured backend. Metadata is returned even when the
// runner fails to load so callers can still describe the label set.
func Open(opts Options, fallbackClasses []string) (Runner, Metadata, error) {
	meta, err := LoadMetadata(opts.MetadataPath, fallbackClasses)
	if err != nil {
		return nil, Metadata{}, err
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	slog.Info("loading model", "backend", backend, "path", opts.ModelPath, "classes", len(meta.Classes))

	var runner Runner
	switch backend {
	case BackendONNX:
		runner, err = NewONNXRunner(opts.ModelPath, opts.RuntimeLibrary, meta)
	case BackendTFLite:
		runner, err = NewTFLiteRunner(opts.ModelPath, opts.Threads, meta)
	case BackendNone, "":
		return nil, meta, nil
	default:
		return nil, meta, fmt.Errorf("unknown model backend %q", opts.Backend)
	}
	if err != nil {
		return nil, meta, err
	}
	return runner, meta, nil
}
