package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store manages on-disk storage for model manifests and model directories.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// ModelsDir returns the directory holding pulled model directories.
func (s *Store) ModelsDir() string { return filepath.Join(s.baseDir, "models") }

// ManifestsDir returns the directory where model manifests are stored.
func (s *Store) ManifestsDir() string { return filepath.Join(s.baseDir, "manifests") }

// ModelDir returns the directory a pulled model of the given name lives
// in. Registry-style names may contain slashes; they map to nested
// directories.
func (s *Store) ModelDir(name string) string {
	return filepath.Join(s.ModelsDir(), filepath.FromSlash(name))
}

// manifestPath flattens a model name to a single manifest file name.
func (s *Store) manifestPath(name string) string {
	flat := strings.ReplaceAll(name, "/", "--")
	return filepath.Join(s.ManifestsDir(), flat+".json")
}

// EnsureDirs creates the required directory structure if it does not exist.
func (s *Store) EnsureDirs() error {
	for _, d := range []string{s.ManifestsDir(), s.ModelsDir()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// SaveManifest writes a model manifest to disk as JSON.
func (s *Store) SaveManifest(m *ModelManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.manifestPath(m.Name), data, 0644)
}

// LoadManifest reads a model manifest from disk by name.
func (s *Store) LoadManifest(name string) (*ModelManifest, error) {
	data, err := os.ReadFile(s.manifestPath(name))
	if err != nil {
		return nil, err
	}
	var m ModelManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest for %s: %w", name, err)
	}
	return &m, nil
}

// ListManifests returns all model manifests found in the manifests
// directory, skipping unreadable entries.
func (s *Store) ListManifests() ([]ModelManifest, error) {
	entries, err := os.ReadDir(s.ManifestsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var manifests []ModelManifest
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.ManifestsDir(), e.Name()))
		if err != nil {
			continue
		}
		var m ModelManifest
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// DeleteManifest removes a model manifest from disk.
func (s *Store) DeleteManifest(name string) error {
	return os.Remove(s.manifestPath(name))
}
