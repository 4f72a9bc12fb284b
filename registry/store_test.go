package registry

import (
	"testing"
	"time"
)

func TestStoreManifestRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	m := &ModelManifest{
		Name:    "gpt2",
		Path:    "/models/gpt2",
		Size:    123,
		AddedAt: time.Now(),
	}
	if err := s.SaveManifest(m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	got, err := s.LoadManifest("gpt2")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got.Name != m.Name || got.Path != m.Path || got.Size != m.Size {
		t.Fatalf("loaded %+v, want %+v", got, m)
	}
}

func TestStoreSlashedNames(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	m := &ModelManifest{Name: "onnx-community/gpt2", Path: "/x", AddedAt: time.Now()}
	if err := s.SaveManifest(m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	got, err := s.LoadManifest("onnx-community/gpt2")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got.Name != m.Name {
		t.Fatalf("loaded name %q", got.Name)
	}

	list, err := s.ListManifests()
	if err != nil {
		t.Fatalf("ListManifests: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(list))
	}
}

func TestStoreListEmpty(t *testing.T) {
	s := NewStore(t.TempDir())

	list, err := s.ListManifests()
	if err != nil {
		t.Fatalf("ListManifests: %v", err)
	}
	if list != nil {
		t.Fatalf("expected nil for missing manifests dir, got %v", list)
	}
}

func TestStoreDeleteManifest(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	if err := s.SaveManifest(&ModelManifest{Name: "m", AddedAt: time.Now()}); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}
	if err := s.DeleteManifest("m"); err != nil {
		t.Fatalf("DeleteManifest: %v", err)
	}
	if _, err := s.LoadManifest("m"); err == nil {
		t.Fatal("manifest should be gone")
	}
}
