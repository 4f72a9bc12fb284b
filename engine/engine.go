// Package engine wires a causal language model and its tokenizer behind a
// single text-in, text-out generation entry point.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/lmforge/tgen/decode"
	"github.com/lmforge/tgen/device"
	"github.com/lmforge/tgen/gpt2"
	"github.com/lmforge/tgen/tokenizer"
)

// Tokenizer converts between text and token ids. Byte-level BPE encoding
// is total, so Encode carries no error.
type Tokenizer interface {
	Encode(text string) []int64
	Decode(ids []int64, skipSpecial bool) string
	EOSTokenID() int64
	PadTokenID() int64
}

// ErrNoModel is returned when generation is attempted before a model is
// loaded.
var ErrNoModel = errors.New("no model loaded")

// Engine pairs a model with its tokenizer and exposes high-level
// generation. The model's parameters are loaded once and shared by every
// call; generation only reads them.
type Engine struct {
	dev       device.Device
	model     decode.Model
	tok       Tokenizer
	modelDir  string
	closeable func() error
}

// New creates an empty Engine that will place models on the given device.
func New(dev device.Device) *Engine {
	return &Engine{dev: dev}
}

// NewFromParts creates an Engine around an already-constructed model and
// tokenizer. Used for composition and testing.
func NewFromParts(model decode.Model, tok Tokenizer) *Engine {
	return &Engine{model: model, tok: tok}
}

// LoadModel loads the model directory (graph, config, tokenizer tables)
// onto the engine's device, replacing any previously loaded model.
func (e *Engine) LoadModel(dir string) error {
	tok, err := tokenizer.New(dir)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}

	model, err := gpt2.Open(dir, e.dev)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	if e.closeable != nil {
		_ = e.closeable()
	}
	e.model = model
	e.tok = tok
	e.modelDir = dir
	e.closeable = model.Close
	return nil
}

// IsLoaded reports whether a model is currently loaded.
func (e *Engine) IsLoaded() bool { return e.model != nil }

// ModelDir returns the directory of the currently loaded model.
func (e *Engine) ModelDir() string { return e.modelDir }

// Reset drops any cached transformer state.
func (e *Engine) Reset() {
	if r, ok := e.model.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Close releases the loaded model's resources.
func (e *Engine) Close() error {
	if e.closeable != nil {
		err := e.closeable()
		e.closeable = nil
		e.model = nil
		e.tok = nil
		return err
	}
	return nil
}

// Generate produces opts.NumReturnSequences text continuations of prompt.
// The call blocks until all sequences are complete; each returned string
// begins with the prompt and decodes with special tokens stripped.
func (e *Engine) Generate(ctx context.Context, prompt string, opts GenerateOptions) ([]string, error) {
	if e.model == nil {
		return nil, ErrNoModel
	}

	ids := e.tok.Encode(prompt)
	if len(ids) == 0 {
		return nil, decode.ErrEmptyPrompt
	}

	seqs, err := decode.Decode(ctx, e.model, ids, opts.decodeOptions(e.tok.EOSTokenID(), e.tok.PadTokenID()))
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, e.tok.Decode(s, true))
	}
	return out, nil
}

// GenerateStream produces a single continuation, invoking callback with
// each new piece of decoded text as it is generated. Return false from
// the callback to stop early. Beam search cannot stream.
func (e *Engine) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions, callback func(piece string) bool) error {
	if e.model == nil {
		return ErrNoModel
	}

	ids := e.tok.Encode(prompt)
	if len(ids) == 0 {
		return decode.ErrEmptyPrompt
	}

	// Token ids do not map 1:1 to text (merges can span byte
	// boundaries), so decode the growing suffix and emit the delta.
	var generated []int64
	var emitted string
	_, err := decode.Stream(ctx, e.model, ids, opts.decodeOptions(e.tok.EOSTokenID(), e.tok.PadTokenID()), func(id int64) bool {
		generated = append(generated, id)
		text := e.tok.Decode(generated, true)
		piece := text[len(emitted):]
		emitted = text
		if piece == "" {
			return true
		}
		return callback(piece)
	})
	return err
}
