package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testModelPath    = "../../models/plant_disease.onnx"
	testMetadataPath = "../../models/model_metadata.json"
)

var testClasses = []string{"a_healthy", "a_blight", "b_healthy"}

func skipIfNoModel(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(testModelPath); os.IsNotExist(err) {
		t.Skip("model files not found; export the classifier to models/ first")
	}
}

func writeMetadata(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMetadataDefaults(t *testing.T) {
	meta, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json"), testClasses)
	require.NoError(t, err)

	assert.Equal(t, testClasses, meta.Classes)
	assert.Equal(t, 224, meta.ImageSize)
	assert.Equal(t, LayoutNHWC, meta.Layout)
	assert.Equal(t, []int64{1, 224, 224, 3}, meta.InputShape)
	assert.Equal(t, []int64{1, 3}, meta.OutputShape)
	assert.Equal(t, "input", meta.InputName)
	assert.Equal(t, "output", meta.OutputName)
	assert.Equal(t, 224*224*3, meta.InputSize())
}

func TestLoadMetadataFromFile(t *testing.T) {
	path := writeMetadata(t, `{
		"input_shape": [1, 3, 64, 64],
		"output_shape": [1, 2],
		"classes": ["x", "y"],
		"image_size": 64,
		"layout": "NCHW",
		"input_name": "pixel_values",
		"output_name": "probs"
	}`)

	meta, err := LoadMetadata(path, testClasses)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, meta.Classes)
	assert.Equal(t, LayoutNCHW, meta.Layout)
	assert.Equal(t, 64, meta.ImageSize)
	assert.Equal(t, "pixel_values", meta.InputName)
	assert.Equal(t, "probs", meta.OutputName)
}

func TestLoadMetadataRejectsMismatch(t *testing.T) {
	tests := map[string]string{
		"output classes": `{"classes": ["x", "y"], "output_shape": [1, 3]}`,
		"input shape":    `{"input_shape": [1, 48, 48, 1], "image_size": 48}`,
		"layout":         `{"layout": "hwcn"}`,
		"json":           `{"classes": [`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadMetadata(writeMetadata(t, body), testClasses)
			assert.Error(t, err)
		})
	}
}

func TestLoadMetadataNoClasses(t *testing.T) {
	_, err := LoadMetadata("", nil)
	assert.Error(t, err)
}

func TestOpenNoneBackend(t *testing.T) {
	runner, meta, err := Open(Options{Backend: BackendNone}, testClasses)
	require.NoError(t, err)
	assert.Nil(t, runner)
	assert.Equal(t, testClasses, meta.Classes)
}

func TestOpenUnknownBackend(t *testing.T) {
	runner, meta, err := Open(Options{Backend: "caffe"}, testClasses)
	assert.Error(t, err)
	assert.Nil(t, runner)
	assert.Equal(t, testClasses, meta.Classes)
}

func TestOpenMissingTFLiteModel(t *testing.T) {
	runner, _, err := Open(Options{
		Backend:   BackendTFLite,
		ModelPath: filepath.Join(t.TempDir(), "missing.tflite"),
	}, testClasses)
	assert.Error(t, err)
	assert.Nil(t, runner)
}

func TestONNXRunner(t *testing.T) {
	skipIfNoModel(t)

	meta, err := LoadMetadata(testMetadataPath, nil)
	require.NoError(t, err)

	runner, err := NewONNXRunner(testModelPath, os.Getenv("ONNXRUNTIME_LIB"), meta)
	require.NoError(t, err)
	defer runner.Close()

	out, err := runner.Run(make([]float32, meta.InputSize()))
	require.NoError(t, err)
	assert.Len(t, out, len(meta.Classes))

	_, err = runner.Run(make([]float32, 3))
	assert.Error(t, err)

	require.NoError(t, runner.Close())
	_, err = runner.Run(make([]float32, meta.InputSize()))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShippedMetadata(t *testing.T) {
	meta, err := LoadMetadata(testMetadataPath, nil)
	require.NoError(t, err)

	assert.Len(t, meta.Classes, 14)
	assert.Equal(t, "Pepper__Bacterial_spot", meta.Classes[0])
	assert.Equal(t, "Tomato_healthy", meta.Classes[13])
	assert.Equal(t, 224*224*3, meta.InputSize())
}
