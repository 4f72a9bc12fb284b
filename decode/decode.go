// Package decode implements autoregressive decoding strategies (greedy,
// sampling with temperature/top-k/top-p, and beam search) over a causal
// language model that exposes next-token logits.
package decode

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"
)

// Model produces next-token logits for a token prefix. Implementations
// may cache transformer state between calls that extend a previous prefix.
type Model interface {
	// Logits returns the unnormalized next-token distribution for ids.
	Logits(ctx context.Context, ids []int64) ([]float32, error)
	// VocabSize returns the size of the output distribution.
	VocabSize() int
}

// Options configures a decoding run. The zero value is not usable; start
// from DefaultOptions.
type Options struct {
	// MaxLength bounds the total sequence length in tokens, prompt
	// included.
	MaxLength int
	// NumReturnSequences is the number of sequences to produce.
	NumReturnSequences int
	// Temperature scales logits before sampling. Must be positive.
	Temperature float64
	// TopK restricts sampling to the k most likely tokens. 0 disables.
	TopK int
	// TopP restricts sampling to the nucleus of cumulative probability p.
	// 1 disables.
	TopP float64
	// RepetitionPenalty discourages tokens already generated. 1 disables.
	RepetitionPenalty float64
	// NoRepeatNGramSize hard-blocks repeating any n-gram of this size.
	// 0 disables.
	NoRepeatNGramSize int
	// NumBeams enables beam search when greater than 1.
	NumBeams int
	// DoSample switches from greedy to stochastic token selection.
	DoSample bool
	// EarlyStopping ends beam search once NumBeams finished hypotheses
	// exist.
	EarlyStopping bool
	// Seed fixes the sampling RNG for reproducibility. Negative means
	// time-seeded.
	Seed int64
	// EOSTokenID terminates a sequence when generated. Negative disables.
	EOSTokenID int64
	// PadTokenID fills finished sequences; conventionally the EOS id for
	// GPT-2.
	PadTokenID int64
}

// DefaultOptions returns sensible decoding defaults.
func DefaultOptions() Options {
	return Options{
		MaxLength:          128,
		NumReturnSequences: 1,
		Temperature:        1.0,
		TopK:               50,
		TopP:               1.0,
		RepetitionPenalty:  1.0,
		NumBeams:           1,
		DoSample:           true,
		Seed:               -1,
		EOSTokenID:         -1,
		PadTokenID:         -1,
	}
}

// ErrEmptyPrompt is returned when the prompt encodes to no tokens.
var ErrEmptyPrompt = errors.New("empty prompt")

func (o Options) validate(promptLen int) error {
	if o.MaxLength <= 0 {
		return fmt.Errorf("max length must be positive, got %d", o.MaxLength)
	}
	if promptLen >= o.MaxLength {
		return fmt.Errorf("prompt length %d leaves no room under max length %d", promptLen, o.MaxLength)
	}
	if o.NumReturnSequences <= 0 {
		return fmt.Errorf("num return sequences must be positive, got %d", o.NumReturnSequences)
	}
	if o.Temperature <= 0 {
		return fmt.Errorf("temperature must be positive, got %g", o.Temperature)
	}
	if o.TopP <= 0 || o.TopP > 1 {
		return fmt.Errorf("top-p must be in (0, 1], got %g", o.TopP)
	}
	if o.TopK < 0 {
		return fmt.Errorf("top-k must be non-negative, got %d", o.TopK)
	}
	if o.RepetitionPenalty < 1 {
		return fmt.Errorf("repetition penalty must be >= 1, got %g", o.RepetitionPenalty)
	}
	if o.NoRepeatNGramSize < 0 {
		return fmt.Errorf("no-repeat-ngram size must be non-negative, got %d", o.NoRepeatNGramSize)
	}
	if o.NumBeams < 1 {
		return fmt.Errorf("num beams must be positive, got %d", o.NumBeams)
	}
	if o.NumBeams > 1 && o.NumReturnSequences > o.NumBeams {
		return fmt.Errorf("num return sequences %d exceeds num beams %d", o.NumReturnSequences, o.NumBeams)
	}
	if o.NumBeams == 1 && !o.DoSample && o.NumReturnSequences > 1 {
		return errors.New("greedy decoding produces identical sequences; use sampling or beam search for multiple returns")
	}
	return nil
}

// Decode produces NumReturnSequences token sequences continuing the
// prompt. Every returned sequence starts with the prompt ids and is at
// most MaxLength ids long.
func Decode(ctx context.Context, m Model, prompt []int64, opts Options) ([][]int64, error) {
	if len(prompt) == 0 {
		return nil, ErrEmptyPrompt
	}
	if err := opts.validate(len(prompt)); err != nil {
		return nil, err
	}

	if opts.NumBeams > 1 {
		return beamSearch(ctx, m, prompt, opts)
	}

	rng := newRNG(opts.Seed)
	out := make([][]int64, 0, opts.NumReturnSequences)
	for i := 0; i < opts.NumReturnSequences; i++ {
		seq, err := decodeOne(ctx, m, prompt, opts, rng, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, nil
}

// Stream produces a single sequence, invoking emit for each generated
// token id. Returning false from emit stops decoding early. Beam search
// cannot stream; it is rejected here.
func Stream(ctx context.Context, m Model, prompt []int64, opts Options, emit func(id int64) bool) ([]int64, error) {
	if len(prompt) == 0 {
		return nil, ErrEmptyPrompt
	}
	if opts.NumBeams > 1 {
		return nil, errors.New("beam search does not support streaming")
	}
	opts.NumReturnSequences = 1
	if err := opts.validate(len(prompt)); err != nil {
		return nil, err
	}
	return decodeOne(ctx, m, prompt, opts, newRNG(opts.Seed), emit)
}

// decodeOne runs a single greedy or sampled continuation.
func decodeOne(ctx context.Context, m Model, prompt []int64, opts Options, rng *rand.Rand, emit func(id int64) bool) ([]int64, error) {
	ids := slices.Clone(prompt)

	for len(ids) < opts.MaxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logits, err := m.Logits(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("model step at length %d: %w", len(ids), err)
		}
		logits = slices.Clone(logits)

		applyRepetitionPenalty(logits, ids, opts.RepetitionPenalty)
		blockRepeatedNGrams(logits, ids, opts.NoRepeatNGramSize)

		var next int64
		if opts.DoSample {
			applyTemperature(logits, opts.Temperature)
			filterTopK(logits, opts.TopK)
			filterTopP(logits, opts.TopP)
			next = sampleFrom(rng, logits)
		} else {
			next = argmax(logits)
		}

		ids = append(ids, next)
		if emit != nil && !emit(next) {
			break
		}
		if opts.EOSTokenID >= 0 && next == opts.EOSTokenID {
			break
		}
	}

	return ids, nil
}

func newRNG(seed int64) *rand.Rand {
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
