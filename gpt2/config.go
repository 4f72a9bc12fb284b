package gpt2

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config carries the hyperparameters needed to drive the ONNX graph,
// read from the config.json shipped alongside the model weights.
type Config struct {
	NLayer     int   `json:"n_layer"`
	NHead      int   `json:"n_head"`
	NEmbd      int   `json:"n_embd"`
	VocabSize  int   `json:"vocab_size"`
	EOSTokenID int64 `json:"eos_token_id"`
}

// LoadConfig reads and validates a model config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read model config: %w", err)
	}

	cfg := Config{EOSTokenID: -1}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse model config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("model config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.NLayer <= 0 {
		return fmt.Errorf("n_layer must be positive, got %d", c.NLayer)
	}
	if c.NHead <= 0 {
		return fmt.Errorf("n_head must be positive, got %d", c.NHead)
	}
	if c.NEmbd <= 0 || c.NEmbd%c.NHead != 0 {
		return fmt.Errorf("n_embd %d must be a positive multiple of n_head %d", c.NEmbd, c.NHead)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	}
	return nil
}

// headDim is the per-head attention dimension.
func (c Config) headDim() int {
	return c.NEmbd / c.NHead
}
