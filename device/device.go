// Package device selects the compute backend used for inference and owns
// the ONNX Runtime environment lifecycle.
package device

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/lmforge/tgen/logx"
)

// Device identifies a compute backend for inference.
type Device int

const (
	CPU Device = iota
	CUDA
	CoreML
)

func (d Device) String() string {
	switch d {
	case CUDA:
		return "cuda"
	case CoreML:
		return "coreml"
	default:
		return "cpu"
	}
}

// Parse converts a device name to a Device. Accepts cpu, cuda, gpu and
// coreml, ignoring case.
func Parse(name string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cpu":
		return CPU, nil
	case "cuda", "gpu":
		return CUDA, nil
	case "coreml":
		return CoreML, nil
	default:
		return CPU, fmt.Errorf("unknown device %q", name)
	}
}

var (
	initOnce sync.Once
	initErr  error
)

// InitRuntime initializes the shared ONNX Runtime environment exactly once.
// The shared library location may be overridden with
// ONNXRUNTIME_SHARED_LIBRARY_PATH.
func InitRuntime() error {
	initOnce.Do(func() {
		if p, ok := os.LookupEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); ok {
			ort.SetSharedLibraryPath(p)
		}
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// DestroyRuntime tears down the shared ONNX Runtime environment. Only call
// after all sessions are closed.
func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

// Detect returns the fastest compute device available to this process:
// CUDA when the provider can be created, otherwise CoreML on darwin,
// otherwise CPU. Absence of an accelerator is not an error. The choice may
// be forced with TGEN_DEVICE.
func Detect() Device {
	if v := os.Getenv("TGEN_DEVICE"); v != "" {
		if d, err := Parse(v); err == nil {
			logx.Log.Info().Str("device", d.String()).Msg("compute device forced by TGEN_DEVICE")
			return d
		}
		logx.Log.Warn().Str("value", v).Msg("ignoring unknown TGEN_DEVICE")
	}

	d := probe()
	logx.Log.Info().Str("device", d.String()).Msg("selected compute device")
	return d
}

func probe() Device {
	if cudaAvailable() {
		return CUDA
	}
	if runtime.GOOS == "darwin" {
		return CoreML
	}
	return CPU
}

// cudaAvailable reports whether the CUDA execution provider can be
// instantiated. Requires an initialized runtime environment.
func cudaAvailable() bool {
	if err := InitRuntime(); err != nil {
		return false
	}
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return false
	}
	_ = opts.Destroy()
	return true
}

// SessionOptions builds ONNX Runtime session options with the execution
// provider matching the device appended. The caller owns the returned
// options and must Destroy them after session creation.
func (d Device) SessionOptions() (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}

	switch d {
	case CUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			_ = opts.Destroy()
			return nil, fmt.Errorf("create cuda provider options: %w", err)
		}
		defer func() { _ = cuda.Destroy() }()
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			_ = opts.Destroy()
			return nil, fmt.Errorf("append cuda provider: %w", err)
		}
	case CoreML:
		if err := opts.AppendExecutionProviderCoreML(0); err != nil {
			_ = opts.Destroy()
			return nil, fmt.Errorf("append coreml provider: %w", err)
		}
	}

	return opts, nil
}
