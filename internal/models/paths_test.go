package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelsDir(t *testing.T) {
	assert.Equal(t, "/custom", GetModelsDir("/custom"))

	t.Setenv(EnvModelsDir, "/from/env")
	assert.Equal(t, "/from/env", GetModelsDir(""))

	t.Setenv(EnvModelsDir, "")
	dir := GetModelsDir("")
	assert.Equal(t, DefaultModelsDir, filepath.Base(dir))
}

func TestResolvePath(t *testing.T) {
	base := t.TempDir()

	// Nothing on disk: organised path is reported.
	assert.Equal(t, filepath.Join(base, TypeClassification, ViTBase), ClassifierPath(base, ViTBase))

	// Flat layout is honoured.
	flat := filepath.Join(base, ImageNetLabels)
	require.NoError(t, os.WriteFile(flat, []byte("tench\n"), 0o600))
	assert.Equal(t, flat, LabelsPath(base, ImageNetLabels))

	// Organised layout wins over flat.
	require.NoError(t, os.MkdirAll(filepath.Join(base, TypeLabels), 0o750))
	organized := filepath.Join(base, TypeLabels, ImageNetLabels)
	require.NoError(t, os.WriteFile(organized, []byte("tench\n"), 0o600))
	assert.Equal(t, organized, LabelsPath(base, ImageNetLabels))

	assert.Equal(t, "/abs/model.onnx", ClassifierPath(base, "/abs/model.onnx"))
	assert.Equal(t, filepath.Join(base, "x.onnx"), ResolvePath(base, "", "x.onnx"))
}

func TestValidateModelExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.onnx")
	assert.Error(t, ValidateModelExists(path))
	require.NoError(t, os.WriteFile(path, []byte{1}, 0o600))
	assert.NoError(t, ValidateModelExists(path))
}

func TestListAvailableModels(t *testing.T) {
	list := ListAvailableModels()
	require.Len(t, list, 3)
	names := map[string]bool{}
	for _, m := range list {
		assert.NotEmpty(t, m.Filename)
		names[m.Filename] = true
	}
	assert.True(t, names[ViTBase])
	assert.True(t, names[MobileNetV3Small])
}
