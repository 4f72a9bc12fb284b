package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lmforge/tgen/engine"
	"github.com/lmforge/tgen/logx"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("write json response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, handler string, status int, msg string) {
	s.metrics.requestsTotal.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) countOK(handler string) {
	s.metrics.requestsTotal.WithLabelValues(handler, "200").Inc()
}

// buildOptions merges a generate request over the engine defaults.
func buildOptions(req GenerateRequest) engine.GenerateOptions {
	opts := engine.DefaultOptions()
	if req.MaxLength > 0 {
		opts.MaxLength = req.MaxLength
	}
	if req.NumReturnSequences > 0 {
		opts.NumReturnSequences = req.NumReturnSequences
	}
	if req.Temperature > 0 {
		opts.Temperature = req.Temperature
	}
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.TopP > 0 {
		opts.TopP = req.TopP
	}
	if req.RepetitionPenalty != 0 {
		opts.RepetitionPenalty = req.RepetitionPenalty
	}
	if req.NoRepeatNGramSize > 0 {
		opts.NoRepeatNGramSize = req.NoRepeatNGramSize
	}
	if req.NumBeams > 0 {
		opts.NumBeams = req.NumBeams
	}
	opts.EarlyStopping = req.EarlyStopping
	if req.Sample != nil {
		opts.DoSample = *req.Sample
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	return opts
}

// handleGenerate handles POST /api/generate, streaming over SSE when the
// request asks for it.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "generate", http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Model == "" {
		req.Model = s.opts.DefaultModel
	}
	if req.Model == "" {
		s.writeError(w, "generate", http.StatusBadRequest, "model is required")
		return
	}
	if req.Prompt == "" {
		s.writeError(w, "generate", http.StatusBadRequest, "prompt is required")
		return
	}

	opts := buildOptions(req)
	if req.Stream && (opts.NumReturnSequences > 1 || opts.NumBeams > 1) {
		s.writeError(w, "generate", http.StatusBadRequest,
			"streaming supports a single sampled sequence; unset stream or reduce num_return_sequences and num_beams")
		return
	}

	if err := s.ensureModel(req.Model); err != nil {
		s.writeError(w, "generate", http.StatusInternalServerError, "cannot load model: "+err.Error())
		return
	}

	if req.Stream {
		s.streamGenerate(w, r, req, opts)
		return
	}

	start := time.Now()
	outputs, err := s.gen.Generate(r.Context(), req.Prompt, opts)
	s.metrics.generateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, "generate", http.StatusInternalServerError, "generation failed: "+err.Error())
		return
	}
	s.metrics.sequencesTotal.Add(float64(len(outputs)))

	s.countOK("generate")
	writeJSON(w, http.StatusOK, GenerateResponse{
		Model:     req.Model,
		Responses: outputs,
		Done:      true,
	})
}

// streamGenerate writes generation output as SSE-style JSON lines.
func (s *Server) streamGenerate(w http.ResponseWriter, r *http.Request, req GenerateRequest, opts engine.GenerateOptions) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, "generate", http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	encoder := json.NewEncoder(w)
	start := time.Now()

	err := s.gen.GenerateStream(r.Context(), req.Prompt, opts, func(piece string) bool {
		chunk := GenerateResponse{
			Model:    req.Model,
			Response: piece,
			Done:     false,
		}
		if encErr := encoder.Encode(chunk); encErr != nil {
			logx.Log.Error().Err(encErr).Msg("stream encode")
			return false
		}
		flusher.Flush()
		return true
	})
	s.metrics.generateDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logx.Log.Error().Err(err).Msg("streaming generation")
	} else {
		s.metrics.sequencesTotal.Inc()
	}

	s.countOK("generate")
	_ = encoder.Encode(GenerateResponse{Model: req.Model, Done: true})
	flusher.Flush()
}

// foldMessages flattens a chat transcript into a plain prompt ending with
// an assistant turn.
func foldMessages(messages []ChatMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			sb.WriteString("System: ")
		case "user":
			sb.WriteString("User: ")
		case "assistant":
			sb.WriteString("Assistant: ")
		default:
			fmt.Fprintf(&sb, "%s: ", msg.Role)
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("Assistant: ")
	return sb.String()
}

// handleChat handles POST /api/chat by folding the transcript into a
// prompt and generating a single continuation.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "chat", http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Model == "" {
		req.Model = s.opts.DefaultModel
	}
	if req.Model == "" {
		s.writeError(w, "chat", http.StatusBadRequest, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, "chat", http.StatusBadRequest, "messages are required")
		return
	}

	if err := s.ensureModel(req.Model); err != nil {
		s.writeError(w, "chat", http.StatusInternalServerError, "cannot load model: "+err.Error())
		return
	}

	prompt := foldMessages(req.Messages)
	opts := engine.DefaultOptions()

	if req.Stream {
		s.streamChat(w, r, req, prompt, opts)
		return
	}

	start := time.Now()
	outputs, err := s.gen.Generate(r.Context(), prompt, opts)
	s.metrics.generateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, "chat", http.StatusInternalServerError, "generation failed: "+err.Error())
		return
	}
	s.metrics.sequencesTotal.Inc()

	reply := strings.TrimPrefix(outputs[0], prompt)
	s.countOK("chat")
	writeJSON(w, http.StatusOK, ChatResponse{
		Model:   req.Model,
		Message: ChatMessage{Role: "assistant", Content: reply},
		Done:    true,
	})
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req ChatRequest, prompt string, opts engine.GenerateOptions) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, "chat", http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	encoder := json.NewEncoder(w)

	err := s.gen.GenerateStream(r.Context(), prompt, opts, func(piece string) bool {
		chunk := ChatResponse{
			Model:   req.Model,
			Message: ChatMessage{Role: "assistant", Content: piece},
			Done:    false,
		}
		if encErr := encoder.Encode(chunk); encErr != nil {
			logx.Log.Error().Err(encErr).Msg("chat stream encode")
			return false
		}
		flusher.Flush()
		return true
	})
	if err != nil {
		logx.Log.Error().Err(err).Msg("streaming chat")
	} else {
		s.metrics.sequencesTotal.Inc()
	}

	s.countOK("chat")
	_ = encoder.Encode(ChatResponse{
		Model:   req.Model,
		Message: ChatMessage{Role: "assistant"},
		Done:    true,
	})
	flusher.Flush()
}

// handleListModels handles GET /api/tags.
func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	manifests, err := s.manager.ListModels()
	if err != nil {
		s.writeError(w, "tags", http.StatusInternalServerError, "failed to list models: "+err.Error())
		return
	}

	models := make([]ModelInfo, 0, len(manifests))
	for _, m := range manifests {
		models = append(models, ModelInfo{
			Name:         m.Name,
			Size:         m.Size,
			Architecture: m.Architecture,
			Parameters:   m.Parameters,
		})
	}

	s.countOK("tags")
	writeJSON(w, http.StatusOK, ListResponse{Models: models})
}

// handlePullModel handles POST /api/pull. The download runs synchronously
// and can take a while for large models.
func (s *Server) handlePullModel(w http.ResponseWriter, r *http.Request) {
	var req PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "pull", http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		s.writeError(w, "pull", http.StatusBadRequest, "name is required")
		return
	}

	if err := s.manager.Pull(r.Context(), req.Name); err != nil {
		s.writeError(w, "pull", http.StatusInternalServerError, "pull failed: "+err.Error())
		return
	}

	manifest, err := s.manager.GetModel(req.Name)
	if err != nil {
		s.writeError(w, "pull", http.StatusInternalServerError, "pull succeeded but manifest missing: "+err.Error())
		return
	}

	s.countOK("pull")
	writeJSON(w, http.StatusOK, ModelInfo{
		Name:         manifest.Name,
		Size:         manifest.Size,
		Architecture: manifest.Architecture,
		Parameters:   manifest.Parameters,
	})
}

// handleDeleteModel handles DELETE /api/delete.
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "delete", http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		s.writeError(w, "delete", http.StatusBadRequest, "name is required")
		return
	}

	if err := s.manager.RemoveModel(req.Name); err != nil {
		s.writeError(w, "delete", http.StatusNotFound, "model not found: "+err.Error())
		return
	}

	s.metrics.requestsTotal.WithLabelValues("delete", "204").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":       "ok",
		"model_loaded": s.gen.IsLoaded(),
	}
	if s.gen.IsLoaded() {
		resp["model_dir"] = s.gen.ModelDir()
	}
	s.countOK("health")
	writeJSON(w, http.StatusOK, resp)
}
