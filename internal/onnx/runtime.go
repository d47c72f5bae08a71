// Package onnx locates and initialises the ONNX Runtime shared library and
// provides tensor helpers shared by the classifier.
package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// EnvLibraryPath overrides the shared library location.
const EnvLibraryPath = "LEAFCHECK_ONNXRUNTIME_LIB"

// ErrLibraryNotFound is returned when no ONNX Runtime library can be located.
var ErrLibraryNotFound = errors.New("onnx runtime library not found")

// LibraryName returns the shared library filename for the current OS.
func LibraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// candidatePaths lists library locations in lookup order.
func candidatePaths(useGPU bool) []string {
	var paths []string
	if env := os.Getenv(EnvLibraryPath); env != "" {
		paths = append(paths, env)
	}
	name, err := LibraryName()
	if err != nil {
		return paths
	}
	if useGPU {
		paths = append(paths, filepath.Join("/opt/onnxruntime/gpu/lib", name))
	}
	paths = append(paths,
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/usr/lib", name),
		filepath.Join("/opt/onnxruntime/cpu/lib", name),
	)
	if root, err := findProjectRoot(); err == nil {
		if useGPU {
			paths = append(paths, filepath.Join(root, "onnxruntime", "gpu", "lib", name))
		}
		paths = append(paths, filepath.Join(root, "onnxruntime", "lib", name))
	}
	return paths
}

// FindLibrary returns the first existing library path.
func FindLibrary(useGPU bool) (string, error) {
	for _, p := range candidatePaths(useGPU) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrLibraryNotFound
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}

var envMu sync.Mutex

// EnsureEnvironment points onnxruntime_go at the shared library and
// initialises the environment once per process.
func EnsureEnvironment(useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	lib, err := FindLibrary(useGPU)
	if err != nil {
		return err
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

// RuntimeInfo describes the loaded runtime.
type RuntimeInfo struct {
	LibraryPath string
	GPU         bool
}

// CheckRuntime initialises the runtime and reports what was loaded.
func CheckRuntime(useGPU bool) (RuntimeInfo, error) {
	lib, err := FindLibrary(useGPU)
	if err != nil {
		return RuntimeInfo{}, err
	}
	if err := EnsureEnvironment(useGPU); err != nil {
		return RuntimeInfo{LibraryPath: lib}, err
	}
	return RuntimeInfo{LibraryPath: lib, GPU: useGPU}, nil
}
