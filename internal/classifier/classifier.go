// Package classifier runs on-device image classification for offline
// diagnosis. A Loader owns the single model instance for the process.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/models"
	"github.com/MeKo-Tech/leafcheck/internal/onnx"
)

// Sentinel errors distinguishing the two failure classes.
var (
	ErrInitialization = errors.New("classifier initialization failed")
	ErrClassification = errors.New("classification failed")
)

// Model is a loaded classifier.
type Model interface {
	Name() string
	Classify(ctx context.Context, data []byte) (diagnosis.Classification, error)
	Close() error
}

// ModelSpec names a model file and how to run it.
type ModelSpec struct {
	Name       string
	ModelPath  string
	LabelsPath string
	TopK       int
	NumThreads int
	GPU        onnx.GPUConfig
}

// Config selects the primary and fallback models.
type Config struct {
	Primary  ModelSpec
	Fallback ModelSpec
	TopK     int
	Warmup   bool
}

// DefaultTopK is the default number of ranked entries returned.
const DefaultTopK = 5

// DefaultConfig resolves the default model files under modelsDir.
func DefaultConfig(modelsDir string) Config {
	labels := models.LabelsPath(modelsDir, models.ImageNetLabels)
	return Config{
		Primary: ModelSpec{
			Name:       "vit-base",
			ModelPath:  models.ClassifierPath(modelsDir, models.ViTBase),
			LabelsPath: labels,
			GPU:        onnx.DefaultGPUConfig(),
		},
		Fallback: ModelSpec{
			Name:       "mobilenetv3-small",
			ModelPath:  models.ClassifierPath(modelsDir, models.MobileNetV3Small),
			LabelsPath: labels,
			GPU:        onnx.DefaultGPUConfig(),
		},
		TopK: DefaultTopK,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.TopK)
	}
	if c.Primary.ModelPath == "" {
		return errors.New("primary model path is empty")
	}
	if err := c.Primary.GPU.Validate(); err != nil {
		return fmt.Errorf("primary gpu: %w", err)
	}
	return c.Fallback.GPU.Validate()
}

// InitError reports that neither model could be loaded.
type InitError struct {
	Primary  error
	Fallback error
}

func (e *InitError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("%v: primary: %v", ErrInitialization, e.Primary)
	}
	return fmt.Sprintf("%v: primary: %v; fallback: %v", ErrInitialization, e.Primary, e.Fallback)
}

func (e *InitError) Unwrap() []error {
	errs := []error{ErrInitialization}
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// ClassificationError reports a runtime inference failure.
type ClassificationError struct {
	Model string
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrClassification, e.Model, e.Err)
}

func (e *ClassificationError) Unwrap() []error { return []error{ErrClassification, e.Err} }
