package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lmforge/tgen/logx"
)

// DefaultPullHost is the registry models are pulled from by default.
const DefaultPullHost = "https://huggingface.co"

// remoteCandidates maps each required file to the remote paths it may be
// published under, tried in order. ONNX exports commonly live in an onnx/
// subdirectory of the repository.
var remoteCandidates = map[string][]string{
	"model.onnx":  {"onnx/model.onnx", "model.onnx"},
	"config.json": {"config.json"},
	"vocab.json":  {"vocab.json"},
	"merges.txt":  {"merges.txt"},
}

var pullClient = &http.Client{Timeout: 30 * time.Minute}

// Pull downloads a model's files from the remote registry into the local
// store and registers it. Already-present files are not re-downloaded.
func (m *ModelManager) Pull(ctx context.Context, name string) error {
	dir := m.store.ModelDir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	for _, file := range RequiredFiles {
		dest := filepath.Join(dir, file)
		if _, err := os.Stat(dest); err == nil {
			logx.Log.Debug().Str("file", file).Msg("already present, skipping")
			continue
		}
		if err := m.fetchFile(ctx, name, file, dest); err != nil {
			return err
		}
	}

	size, err := validateModelDir(dir)
	if err != nil {
		return err
	}

	manifest := &ModelManifest{
		Name:         name,
		Path:         dir,
		Size:         size,
		Architecture: "gpt2",
		Source:       m.pullHost + "/" + name,
		AddedAt:      time.Now(),
	}
	if err := m.store.SaveManifest(manifest); err != nil {
		return err
	}

	logx.Log.Info().Str("model", name).Int64("bytes", size).Msg("model pulled")
	return nil
}

// fetchFile tries each remote candidate path for file and writes the
// first hit to dest via a temp file.
func (m *ModelManager) fetchFile(ctx context.Context, name, file, dest string) error {
	var lastErr error
	for _, remote := range remoteCandidates[file] {
		url := fmt.Sprintf("%s/%s/resolve/main/%s", m.pullHost, name, remote)
		if err := m.downloadTo(ctx, url, dest); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("fetch %s for %s: %w", file, name, lastErr)
}

func (m *ModelManager) downloadTo(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	logx.Log.Info().Str("url", url).Msg("downloading")
	resp, err := pullClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}

	logx.Log.Debug().Str("dest", dest).Int64("bytes", n).Msg("downloaded")
	return nil
}
