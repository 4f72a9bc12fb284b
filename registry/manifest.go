package registry

import "time"

// RequiredFiles are the artifacts a model directory must contain: the
// exported graph, its hyperparameters, and the tokenizer tables.
var RequiredFiles = []string{"model.onnx", "config.json", "vocab.json", "merges.txt"}

// ModelManifest describes a registered model's metadata.
type ModelManifest struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Architecture string    `json:"architecture,omitempty"`
	Parameters   string    `json:"parameters,omitempty"`
	Source       string    `json:"source,omitempty"`
	AddedAt      time.Time `json:"added_at"`
}
