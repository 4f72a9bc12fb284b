package registry

import (
	"os"
	"path/filepath"
	"testing"
)

// writeModelDir creates a directory with all required model files.
func writeModelDir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, f := range RequiredFiles {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("data"), 0644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
}

func TestAddAndResolveLocalModel(t *testing.T) {
	mgr, err := NewModelManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewModelManager: %v", err)
	}

	modelDir := filepath.Join(t.TempDir(), "gpt2")
	writeModelDir(t, modelDir)

	if err := mgr.AddLocalModel("gpt2", modelDir); err != nil {
		t.Fatalf("AddLocalModel: %v", err)
	}

	got, err := mgr.ResolveModelPath("gpt2")
	if err != nil {
		t.Fatalf("ResolveModelPath: %v", err)
	}
	if got != modelDir {
		t.Fatalf("resolved %q, want %q", got, modelDir)
	}

	manifest, err := mgr.GetModel("gpt2")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if manifest.Size != int64(4*len(RequiredFiles)) {
		t.Fatalf("manifest size = %d", manifest.Size)
	}
}

func TestAddLocalModelRejectsIncompleteDir(t *testing.T) {
	mgr, err := NewModelManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewModelManager: %v", err)
	}

	dir := t.TempDir() // empty
	if err := mgr.AddLocalModel("broken", dir); err == nil {
		t.Fatal("expected error for directory without model files")
	}
}

func TestResolveModelPathDirectory(t *testing.T) {
	mgr, err := NewModelManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewModelManager: %v", err)
	}

	modelDir := filepath.Join(t.TempDir(), "local")
	writeModelDir(t, modelDir)

	got, err := mgr.ResolveModelPath(modelDir)
	if err != nil {
		t.Fatalf("ResolveModelPath: %v", err)
	}
	if got != modelDir {
		t.Fatalf("resolved %q", got)
	}
}

func TestResolveModelPathUnknown(t *testing.T) {
	mgr, err := NewModelManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewModelManager: %v", err)
	}

	if _, err := mgr.ResolveModelPath("nope"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestRemoveModelKeepsExternalFiles(t *testing.T) {
	mgr, err := NewModelManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewModelManager: %v", err)
	}

	modelDir := filepath.Join(t.TempDir(), "keepme")
	writeModelDir(t, modelDir)
	if err := mgr.AddLocalModel("keepme", modelDir); err != nil {
		t.Fatalf("AddLocalModel: %v", err)
	}

	if err := mgr.RemoveModel("keepme"); err != nil {
		t.Fatalf("RemoveModel: %v", err)
	}

	if _, err := mgr.GetModel("keepme"); err == nil {
		t.Fatal("manifest should be deleted")
	}
	if _, err := os.Stat(modelDir); err != nil {
		t.Fatal("externally registered files should survive removal")
	}
}
