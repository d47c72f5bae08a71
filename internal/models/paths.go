// Package models resolves on-disk locations of classifier weights and label files.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ViTBase is the primary classifier, an ImageNet ViT-B/16 at 224px.
	ViTBase = "vit_base_patch16_224.onnx"
	// MobileNetV3Small is the lightweight fallback classifier.
	MobileNetV3Small = "mobilenetv3_small_100.onnx"

	// ImageNetLabels lists one class label per line.
	ImageNetLabels = "imagenet_labels.txt"
)

// Directory layout under the models dir.
const (
	TypeClassification = "classification"
	TypeLabels         = "labels"
)

// DefaultModelsDir is used when no directory is configured.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "LEAFCHECK_MODELS_DIR"

// ModelInfo describes a known model file.
type ModelInfo struct {
	Name        string
	Type        string
	Description string
	Filename    string
}

// GetModelsDir returns the models directory. Priority: explicit argument,
// environment variable, project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolvePath returns modelsDir/<type>/<filename> when it exists, else the
// flat modelsDir/<filename>. Absolute filenames are returned unchanged.
func ResolvePath(modelsDir, kind, filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	base := GetModelsDir(modelsDir)
	if kind != "" {
		organized := filepath.Join(base, kind, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
		flat := filepath.Join(base, filename)
		if _, err := os.Stat(flat); err == nil {
			return flat
		}
		return organized
	}
	return filepath.Join(base, filename)
}

// ClassifierPath resolves a classification model file.
func ClassifierPath(modelsDir, filename string) string {
	return ResolvePath(modelsDir, TypeClassification, filename)
}

// LabelsPath resolves a label file.
func LabelsPath(modelsDir, filename string) string {
	return ResolvePath(modelsDir, TypeLabels, filename)
}

// ValidateModelExists checks that a model file is present.
func ValidateModelExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("model file not found: %s", path)
		}
		return fmt.Errorf("stat model file: %w", err)
	}
	return nil
}

// ListAvailableModels returns the models the classifier knows about.
func ListAvailableModels() []ModelInfo {
	return []ModelInfo{
		{Name: "vit-base", Type: TypeClassification, Description: "ViT-B/16 ImageNet classifier (primary)", Filename: ViTBase},
		{Name: "mobilenetv3-small", Type: TypeClassification, Description: "MobileNetV3 small ImageNet classifier (fallback)", Filename: MobileNetV3Small},
		{Name: "imagenet-labels", Type: TypeLabels, Description: "ImageNet-1k class labels", Filename: ImageNetLabels},
	}
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}
