package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"

	DefaultImageSize = 224
	channels         = 3
)

// Metadata describes the model's tensors and the ordered label set its
// output vector is indexed by.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	Layout      string   `json:"layout,omitempty"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

func (m Metadata) InputSize() int {
	n := 1
	for _, d := range m.InputShape {
		n *= int(d)
	}
	return n
}

// LoadMetadata reads metadata JSON from path. A missing file is not an
// error: the reference pipeline defaults are used with fallbackClasses.
func LoadMetadata(path string, fallbackClasses []string) (Metadata, error) {
	var meta Metadata
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
		default:
			if err := json.Unmarshal(data, &meta); err != nil {
				return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
			}
		}
	}
	if len(meta.Classes) == 0 {
		meta.Classes = append([]string(nil), fallbackClasses...)
	}
	if err := meta.normalize(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// normalize fills defaults and checks that shapes, classes and layout agree.
func (m *Metadata) normalize() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("metadata: no classes")
	}
	if m.ImageSize <= 0 {
		m.ImageSize = DefaultImageSize
	}
	m.Layout = strings.ToLower(m.Layout)
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}

	size := int64(m.ImageSize)
	var want []int64
	switch m.Layout {
	case LayoutNHWC:
		want = []int64{1, size, size, channels}
	case LayoutNCHW:
		want = []int64{1, channels, size, size}
	default:
		return fmt.Errorf("metadata: unknown layout %q", m.Layout)
	}
	if len(m.InputShape) == 0 {
		m.InputShape = want
	} else if !slices.Equal(m.InputShape, want) {
		return fmt.Errorf("metadata: input shape %v does not match %s %dx%d", m.InputShape, m.Layout, size, size)
	}

	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
	if last := m.OutputShape[len(m.OutputShape)-1]; last != int64(len(m.Classes)) {
		return fmt.Errorf("metadata: output shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	return nil
}
