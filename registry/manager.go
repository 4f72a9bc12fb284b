// Package registry tracks locally available models. A model is a
// directory holding the ONNX graph, its config, and the tokenizer tables;
// a JSON manifest per model records where it lives and where it came from.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lmforge/tgen/logx"
)

// ModelManager provides high-level operations for managing local models.
type ModelManager struct {
	store    *Store
	pullHost string
}

// ManagerOption configures a ModelManager.
type ManagerOption func(*ModelManager)

// WithPullHost overrides the remote host models are pulled from.
func WithPullHost(host string) ManagerOption {
	return func(m *ModelManager) {
		if host != "" {
			m.pullHost = host
		}
	}
}

// NewModelManager creates a ModelManager and ensures the storage
// directories exist.
func NewModelManager(baseDir string, opts ...ManagerOption) (*ModelManager, error) {
	store := NewStore(baseDir)
	if err := store.EnsureDirs(); err != nil {
		return nil, err
	}
	m := &ModelManager{store: store, pullHost: DefaultPullHost}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DefaultBaseDir returns the default base directory (~/.tgen).
func DefaultBaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgen")
}

// validateModelDir checks that dir contains every required model file and
// returns the total size of those files.
func validateModelDir(dir string) (int64, error) {
	var size int64
	for _, f := range RequiredFiles {
		info, err := os.Stat(filepath.Join(dir, f))
		if err != nil {
			return 0, fmt.Errorf("model directory %s is missing %s: %w", dir, f, err)
		}
		size += info.Size()
	}
	return size, nil
}

// AddLocalModel registers an existing model directory under a name.
func (m *ModelManager) AddLocalModel(name, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	size, err := validateModelDir(abs)
	if err != nil {
		return err
	}

	manifest := &ModelManifest{
		Name:         name,
		Path:         abs,
		Size:         size,
		Architecture: "gpt2",
		AddedAt:      time.Now(),
	}
	if err := m.store.SaveManifest(manifest); err != nil {
		return err
	}

	logx.Log.Info().Str("model", name).Str("path", abs).Msg("registered local model")
	return nil
}

// GetModel retrieves a model manifest by name.
func (m *ModelManager) GetModel(name string) (*ModelManifest, error) {
	return m.store.LoadManifest(name)
}

// ListModels returns all registered model manifests.
func (m *ModelManager) ListModels() ([]ModelManifest, error) {
	return m.store.ListManifests()
}

// RemoveModel deletes a model's manifest. Pulled model files are removed
// too; files registered from elsewhere on disk are left alone.
func (m *ModelManager) RemoveModel(name string) error {
	manifest, err := m.store.LoadManifest(name)
	if err != nil {
		return err
	}
	if err := m.store.DeleteManifest(name); err != nil {
		return err
	}

	modelDir := m.store.ModelDir(name)
	if manifest.Path == modelDir {
		if err := os.RemoveAll(modelDir); err != nil {
			return fmt.Errorf("remove model files: %w", err)
		}
	}

	logx.Log.Info().Str("model", name).Msg("removed model")
	return nil
}

// ResolveModelPath resolves a model name or directory path to the model
// directory. An existing directory wins over a registered name.
func (m *ModelManager) ResolveModelPath(nameOrPath string) (string, error) {
	if info, err := os.Stat(nameOrPath); err == nil && info.IsDir() {
		if _, err := validateModelDir(nameOrPath); err != nil {
			return "", err
		}
		abs, err := filepath.Abs(nameOrPath)
		if err != nil {
			return nameOrPath, nil
		}
		return abs, nil
	}

	manifest, err := m.store.LoadManifest(nameOrPath)
	if err != nil {
		return "", fmt.Errorf("model %q not found locally and not a model directory", nameOrPath)
	}
	return manifest.Path, nil
}
