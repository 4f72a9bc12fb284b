package api

// GenerateRequest is the JSON body for POST /api/generate.
type GenerateRequest struct {
	Model              string  `json:"model"`
	Prompt             string  `json:"prompt"`
	MaxLength          int     `json:"max_length,omitempty"`
	NumReturnSequences int     `json:"num_return_sequences,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	TopK               int     `json:"top_k,omitempty"`
	TopP               float64 `json:"top_p,omitempty"`
	RepetitionPenalty  float64 `json:"repetition_penalty,omitempty"`
	NoRepeatNGramSize  int     `json:"no_repeat_ngram_size,omitempty"`
	NumBeams           int     `json:"num_beams,omitempty"`
	EarlyStopping      bool    `json:"early_stopping,omitempty"`
	Sample             *bool   `json:"sample,omitempty"`
	Seed               *int64  `json:"seed,omitempty"`
	Stream             bool    `json:"stream,omitempty"`
}

// GenerateResponse is the JSON response for POST /api/generate. In
// streaming mode Response carries one text piece per chunk; otherwise
// Responses carries every requested sequence.
type GenerateResponse struct {
	Model     string   `json:"model"`
	Responses []string `json:"responses,omitempty"`
	Response  string   `json:"response,omitempty"`
	Done      bool     `json:"done"`
}

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Model   string      `json:"model"`
	Message ChatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// ModelInfo describes a model in list responses.
type ModelInfo struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Architecture string `json:"architecture,omitempty"`
	Parameters   string `json:"parameters,omitempty"`
}

// ListResponse is the JSON response for GET /api/tags.
type ListResponse struct {
	Models []ModelInfo `json:"models"`
}

// PullRequest is the JSON body for POST /api/pull.
type PullRequest struct {
	Name string `json:"name"`
}

// DeleteRequest is the JSON body for DELETE /api/delete.
type DeleteRequest struct {
	Name string `json:"name"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
