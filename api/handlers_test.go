package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lmforge/tgen/engine"
	"github.com/lmforge/tgen/registry"
)

type fakeGenerator struct {
	dir    string
	pieces []string
	err    error
}

func (g *fakeGenerator) LoadModel(dir string) error { g.dir = dir; return nil }
func (g *fakeGenerator) IsLoaded() bool             { return g.dir != "" }
func (g *fakeGenerator) ModelDir() string           { return g.dir }

func (g *fakeGenerator) Generate(_ context.Context, prompt string, opts engine.GenerateOptions) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	outputs := make([]string, opts.NumReturnSequences)
	for i := range outputs {
		outputs[i] = fmt.Sprintf("%s continuation %d", prompt, i)
	}
	return outputs, nil
}

func (g *fakeGenerator) GenerateStream(_ context.Context, _ string, _ engine.GenerateOptions, callback func(string) bool) error {
	if g.err != nil {
		return g.err
	}
	for _, p := range g.pieces {
		if !callback(p) {
			break
		}
	}
	return nil
}

func writeModelFiles(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range registry.RequiredFiles {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeGenerator) {
	t.Helper()

	base := t.TempDir()
	manager, err := registry.NewModelManager(base)
	if err != nil {
		t.Fatalf("NewModelManager: %v", err)
	}

	modelDir := filepath.Join(base, "src", "tiny")
	writeModelFiles(t, modelDir)
	if err := manager.AddLocalModel("tiny", modelDir); err != nil {
		t.Fatalf("AddLocalModel: %v", err)
	}

	gen := &fakeGenerator{pieces: []string{"Hello", " world"}}
	srv := NewServer(gen, manager, Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, gen
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestGenerateReturnsRequestedSequences(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/generate", GenerateRequest{
		Model:              "tiny",
		Prompt:             "Once upon a time",
		NumReturnSequences: 3,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Responses) != 3 {
		t.Fatalf("responses = %d, want 3", len(out.Responses))
	}
	if !out.Done {
		t.Error("done = false")
	}
	for _, r := range out.Responses {
		if !strings.HasPrefix(r, "Once upon a time") {
			t.Errorf("response %q does not start with the prompt", r)
		}
	}
}

func TestGenerateValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	cases := []struct {
		name string
		req  GenerateRequest
	}{
		{"missing model", GenerateRequest{Prompt: "hi"}},
		{"missing prompt", GenerateRequest{Model: "tiny"}},
		{"stream with beams", GenerateRequest{Model: "tiny", Prompt: "hi", Stream: true, NumBeams: 4}},
		{"stream with multiple sequences", GenerateRequest{Model: "tiny", Prompt: "hi", Stream: true, NumReturnSequences: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/generate", tc.req)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestGenerateUnknownModel(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/generate", GenerateRequest{Model: "nope", Prompt: "hi"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestGenerateStreamEmitsChunks(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/generate", GenerateRequest{
		Model:  "tiny",
		Prompt: "hi",
		Stream: true,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content-type = %q", ct)
	}

	var chunks []GenerateResponse
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var c GenerateResponse
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		chunks = append(chunks, c)
	}

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if chunks[0].Response != "Hello" || chunks[1].Response != " world" {
		t.Errorf("pieces = %q, %q", chunks[0].Response, chunks[1].Response)
	}
	last := chunks[len(chunks)-1]
	if !last.Done {
		t.Error("final chunk not marked done")
	}
}

func TestChatFoldsMessages(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", ChatRequest{
		Model: "tiny",
		Messages: []ChatMessage{
			{Role: "system", Content: "Be brief."},
			{Role: "user", Content: "Hello"},
		},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Message.Role != "assistant" {
		t.Errorf("role = %q", out.Message.Role)
	}
	if out.Message.Content == "" {
		t.Error("empty assistant reply")
	}
	if strings.Contains(out.Message.Content, "System: Be brief.") {
		t.Error("prompt prefix leaked into the reply")
	}
}

func TestTagsListsModels(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/tags")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Models) != 1 || out.Models[0].Name != "tiny" {
		t.Errorf("models = %+v", out.Models)
	}
}

func TestDeleteModel(t *testing.T) {
	ts, _ := newTestServer(t)

	data, _ := json.Marshal(DeleteRequest{Name: "tiny"})
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/delete", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	listResp, err := http.Get(ts.URL + "/api/tags")
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var out ListResponse
	if err := json.NewDecoder(listResp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Models) != 0 {
		t.Errorf("models after delete = %+v", out.Models)
	}
}

func TestHealthReportsLoadedModel(t *testing.T) {
	ts, gen := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var before map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&before); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if before["model_loaded"] != false {
		t.Errorf("model_loaded before generate = %v", before["model_loaded"])
	}

	postJSON(t, ts.URL+"/api/generate", GenerateRequest{Model: "tiny", Prompt: "hi"}).Body.Close()
	if !gen.IsLoaded() {
		t.Fatal("generator did not load the model")
	}

	resp, err = http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var after map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&after); err != nil {
		t.Fatal(err)
	}
	if after["model_loaded"] != true {
		t.Errorf("model_loaded after generate = %v", after["model_loaded"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	postJSON(t, ts.URL+"/api/generate", GenerateRequest{Model: "tiny", Prompt: "hi"}).Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	if !strings.Contains(body, "tgen_requests_total") {
		t.Error("missing request counter")
	}
	if !strings.Contains(body, "tgen_generated_sequences_total") {
		t.Error("missing sequence counter")
	}
}
