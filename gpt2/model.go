// Package gpt2 runs GPT-2-family causal language models through ONNX
// Runtime. The graph is driven one token per step with the attention
// key/value cache carried between steps.
package gpt2

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/lmforge/tgen/device"
	"github.com/lmforge/tgen/logx"
)

// ModelFile is the weights file expected inside a model directory.
const ModelFile = "model.onnx"

// Model is a loaded causal LM session. It implements decode.Model. Safe
// for concurrent use, though calls serialize on the KV cache.
type Model struct {
	cfg         Config
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string

	mu     sync.Mutex
	prefix []int64     // token prefix the cache currently covers
	cache  []ort.Value // per-layer present key/value tensors
}

// Open loads the model under dir onto the given device. The directory
// must contain model.onnx and config.json.
func Open(dir string, dev device.Device) (*Model, error) {
	if err := device.InitRuntime(); err != nil {
		return nil, fmt.Errorf("init onnx runtime: %w", err)
	}

	cfg, err := LoadConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, err
	}

	m := &Model{cfg: cfg}

	m.inputNames = make([]string, 0, 3+2*cfg.NLayer)
	m.outputNames = make([]string, 0, 1+2*cfg.NLayer)
	m.inputNames = append(m.inputNames, "input_ids", "position_ids", "attention_mask")
	m.outputNames = append(m.outputNames, "logits")
	for i := 0; i < cfg.NLayer; i++ {
		m.inputNames = append(m.inputNames,
			fmt.Sprintf("past_key_values.%d.key", i),
			fmt.Sprintf("past_key_values.%d.value", i))
		m.outputNames = append(m.outputNames,
			fmt.Sprintf("present.%d.key", i),
			fmt.Sprintf("present.%d.value", i))
	}

	opts, err := dev.SessionOptions()
	if err != nil {
		return nil, err
	}
	defer func() { _ = opts.Destroy() }()

	session, err := ort.NewDynamicAdvancedSession(filepath.Join(dir, ModelFile), m.inputNames, m.outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", dir, err)
	}
	m.session = session

	logx.Log.Info().
		Str("dir", dir).
		Str("device", dev.String()).
		Int("layers", cfg.NLayer).
		Int("vocab", cfg.VocabSize).
		Msg("model loaded")

	return m, nil
}

// VocabSize returns the size of the output distribution.
func (m *Model) VocabSize() int { return m.cfg.VocabSize }

// EOSTokenID returns the model's end-of-sequence id, or -1.
func (m *Model) EOSTokenID() int64 { return m.cfg.EOSTokenID }

// Logits returns next-token logits for the given prefix. When ids extends
// the previously evaluated prefix, only the new tokens are fed through the
// graph; otherwise the cache is rebuilt from scratch.
func (m *Model) Logits(ctx context.Context, ids []int64) ([]float32, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty token prefix")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if len(m.prefix) > 0 && len(m.prefix) < len(ids) && slices.Equal(m.prefix, ids[:len(m.prefix)]) {
		start = len(m.prefix)
	} else {
		m.dropCacheLocked()
	}

	cache := m.cache
	if cache == nil {
		cache = m.emptyCache()
	}

	var logits []float32
	for pos := start; pos < len(ids); pos++ {
		if err := ctx.Err(); err != nil {
			destroyValues(cache)
			m.cache = nil
			m.prefix = nil
			return nil, err
		}

		outputs, err := m.forward(ids[pos], int64(pos), cache)
		if err != nil {
			destroyValues(cache)
			m.cache = nil
			m.prefix = nil
			return nil, err
		}

		logits = slices.Clone(outputs[0].(*ort.Tensor[float32]).GetData())
		_ = outputs[0].Destroy()

		destroyValues(cache)
		cache = outputs[1:]
	}

	m.cache = cache
	m.prefix = slices.Clone(ids)

	return logits, nil
}

// Reset drops the KV cache.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropCacheLocked()
}

// Close releases the session and any cached tensors. The shared runtime
// environment stays up for other models.
func (m *Model) Close() error {
	m.mu.Lock()
	m.dropCacheLocked()
	m.mu.Unlock()

	if m.session != nil {
		err := m.session.Destroy()
		m.session = nil
		return err
	}
	return nil
}

func (m *Model) dropCacheLocked() {
	destroyValues(m.cache)
	m.cache = nil
	m.prefix = nil
}

// forward runs one decoding step: a single token at the given position
// with the current cache bound as past key/values.
func (m *Model) forward(token, position int64, cache []ort.Value) ([]ort.Value, error) {
	binding, err := m.session.CreateIoBinding()
	if err != nil {
		return nil, fmt.Errorf("create io binding: %w", err)
	}
	defer func() { _ = binding.Destroy() }()

	inputs, err := m.stepInputs(token, position)
	if err != nil {
		return nil, err
	}
	defer destroyValues(inputs)

	outputs, err := m.stepOutputs(position)
	if err != nil {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			destroyValues(outputs)
		}
	}()

	bound := append(slices.Clone(inputs), cache...)
	if len(bound) != len(m.inputNames) {
		return nil, fmt.Errorf("expected %d inputs, have %d", len(m.inputNames), len(bound))
	}
	for i, name := range m.inputNames {
		if err := binding.BindInput(name, bound[i]); err != nil {
			return nil, fmt.Errorf("bind input %s: %w", name, err)
		}
	}
	for i, name := range m.outputNames {
		if err := binding.BindOutput(name, outputs[i]); err != nil {
			return nil, fmt.Errorf("bind output %s: %w", name, err)
		}
	}

	if err := m.session.RunWithBinding(binding); err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}

	ok = true
	return outputs, nil
}

// stepInputs builds the input_ids, position_ids and attention_mask tensors
// for a single-token step.
func (m *Model) stepInputs(token, position int64) ([]ort.Value, error) {
	tokens, err := ort.NewTensor[int64]([]int64{1, 1}, []int64{token})
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	positions, err := ort.NewTensor[int64]([]int64{1, 1}, []int64{position})
	if err != nil {
		_ = tokens.Destroy()
		return nil, fmt.Errorf("create position tensor: %w", err)
	}

	maskData := make([]int64, position+1)
	for i := range maskData {
		maskData[i] = 1
	}
	mask, err := ort.NewTensor[int64]([]int64{1, position + 1}, maskData)
	if err != nil {
		_ = tokens.Destroy()
		_ = positions.Destroy()
		return nil, fmt.Errorf("create attention mask: %w", err)
	}

	return []ort.Value{ort.Value(tokens), ort.Value(positions), ort.Value(mask)}, nil
}

// stepOutputs allocates the logits tensor and the present key/value
// tensors for a step at the given position.
func (m *Model) stepOutputs(position int64) ([]ort.Value, error) {
	outputs := make([]ort.Value, 0, 1+2*m.cfg.NLayer)

	logits, err := ort.NewEmptyTensor[float32]([]int64{1, 1, int64(m.cfg.VocabSize)})
	if err != nil {
		return nil, fmt.Errorf("create logits tensor: %w", err)
	}
	outputs = append(outputs, ort.Value(logits))

	shape := []int64{1, int64(m.cfg.NHead), position + 1, int64(m.cfg.headDim())}
	for i := 0; i < m.cfg.NLayer; i++ {
		k, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			destroyValues(outputs)
			return nil, fmt.Errorf("create present key tensor: %w", err)
		}
		v, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			_ = k.Destroy()
			destroyValues(outputs)
			return nil, fmt.Errorf("create present value tensor: %w", err)
		}
		outputs = append(outputs, ort.Value(k), ort.Value(v))
	}

	return outputs, nil
}

// emptyCache builds zero-length past key/value tensors for the first step.
func (m *Model) emptyCache() []ort.Value {
	values := make([]ort.Value, 0, 2*m.cfg.NLayer)
	shape := []int64{1, int64(m.cfg.NHead), 0, int64(m.cfg.headDim())}

	for i := 0; i < m.cfg.NLayer; i++ {
		k, _ := ort.NewEmptyTensor[float32](shape)
		v, _ := ort.NewEmptyTensor[float32](shape)
		values = append(values, ort.Value(k), ort.Value(v))
	}

	return values
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		_ = v.Destroy()
	}
}
