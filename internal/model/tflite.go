package model

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	tflite "github.com/tphakala/go-tflite"
)

// TFLiteRunner runs a TensorFlow Lite conversion of the classifier.
type TFLiteRunner struct {
	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	outputSize  int
}

// NewTFLiteRunner loads a .tflite file and allocates its tensors. threads
// <= 0 uses one thread per CPU.
func NewTFLiteRunner(modelPath string, threads int, meta Metadata) (*TFLiteRunner, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TFLite model: %w", err)
	}

	m := tflite.NewModel(data)
	if m == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", modelPath)
	}

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		slog.Error("tflite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(m, options)
	if interpreter == nil {
		m.Delete()
		return nil, fmt.Errorf("cannot create TFLite interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		m.Delete()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	input := interpreter.GetInputTensor(0)
	if input == nil || len(input.Float32s()) != meta.InputSize() {
		interpreter.Delete()
		m.Delete()
		return nil, fmt.Errorf("TFLite input tensor does not match shape %v", meta.InputShape)
	}
	output := interpreter.GetOutputTensor(0)
	if output == nil {
		interpreter.Delete()
		m.Delete()
		return nil, fmt.Errorf("cannot get TFLite output tensor")
	}

	return &TFLiteRunner{
		model:       m,
		interpreter: interpreter,
		outputSize:  output.Dim(output.NumDims() - 1),
	}, nil
}

func (r *TFLiteRunner) Run(input []float32) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interpreter == nil {
		return nil, ErrClosed
	}

	inputTensor := r.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	dst := inputTensor.Float32s()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if status := r.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := r.interpreter.GetOutputTensor(0)
	out := make([]float32, r.outputSize)
	copy(out, outputTensor.Float32s())
	return out, nil
}

func (r *TFLiteRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interpreter != nil {
		r.interpreter.Delete()
		r.interpreter = nil
	}
	if r.model != nil {
		r.model.Delete()
		r.model = nil
	}
	return nil
}
