package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryName(t *testing.T) {
	name, err := LibraryName()
	require.NoError(t, err)
	assert.Contains(t, name, "onnxruntime")
}

func TestFindLibrary_EnvOverride(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, []byte("stub"), 0o600))
	t.Setenv(EnvLibraryPath, lib)

	got, err := FindLibrary(false)
	require.NoError(t, err)
	assert.Equal(t, lib, got)
}

func TestCandidatePaths_GPUFirst(t *testing.T) {
	t.Setenv(EnvLibraryPath, "")
	paths := candidatePaths(true)
	require.NotEmpty(t, paths)
	assert.Contains(t, paths[0], "gpu")
}

func TestCheckRuntime(t *testing.T) {
	info, err := CheckRuntime(false)
	if err != nil {
		t.Skipf("ONNX Runtime not available: %v", err)
	}
	assert.NotEmpty(t, info.LibraryPath)
}
