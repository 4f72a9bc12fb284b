package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lmforge/tgen/decode"
)

// byteTok is a trivial byte-level tokenizer for tests: one id per byte,
// no special tokens.
type byteTok struct{}

func (byteTok) Encode(text string) []int64 {
	ids := make([]int64, 0, len(text))
	for _, b := range []byte(text) {
		ids = append(ids, int64(b))
	}
	return ids
}

func (byteTok) Decode(ids []int64, _ bool) string {
	out := make([]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, byte(id))
	}
	return string(out)
}

func (byteTok) EOSTokenID() int64 { return -1 }
func (byteTok) PadTokenID() int64 { return -1 }

// flatModel returns uniform logits over the byte vocabulary.
type flatModel struct{}

func (flatModel) Logits(_ context.Context, _ []int64) ([]float32, error) {
	return make([]float32, 256), nil
}

func (flatModel) VocabSize() int { return 256 }

// echoModel deterministically continues with the byte after the last one.
type echoModel struct{}

func (echoModel) Logits(_ context.Context, ids []int64) ([]float32, error) {
	logits := make([]float32, 256)
	logits[(ids[len(ids)-1]+1)%256] = 10
	return logits, nil
}

func (echoModel) VocabSize() int { return 256 }

func TestGenerateScenario(t *testing.T) {
	eng := NewFromParts(flatModel{}, byteTok{})
	prompt := "Once upon a time in a land far away"

	opts := DefaultOptions()
	opts.MaxLength = 50
	opts.NumReturnSequences = 3
	opts.RepetitionPenalty = 1.0
	opts.Seed = 7

	outputs, err := eng.Generate(context.Background(), prompt, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outputs))
	}

	tok := byteTok{}
	seen := make(map[string]bool)
	for _, out := range outputs {
		if !strings.HasPrefix(out, prompt) {
			t.Errorf("output %q does not begin with the prompt", out)
		}
		if n := len(tok.Encode(out)); n > opts.MaxLength {
			t.Errorf("output re-tokenizes to %d tokens, max is %d", n, opts.MaxLength)
		}
		if seen[out] {
			t.Errorf("duplicate output %q", out)
		}
		seen[out] = true
	}
}

func TestGenerateGreedyDeterministic(t *testing.T) {
	eng := NewFromParts(echoModel{}, byteTok{})

	opts := DefaultOptions()
	opts.DoSample = false
	opts.RepetitionPenalty = 1.0
	opts.MaxLength = 10

	first, err := eng.Generate(context.Background(), "abc", opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := eng.Generate(context.Background(), "abc", opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if first[0] != second[0] {
		t.Fatalf("greedy output varied: %q vs %q", first[0], second[0])
	}
	if first[0] != "abcdefghij" {
		t.Fatalf("greedy output = %q", first[0])
	}
}

func TestGenerateWithoutModel(t *testing.T) {
	eng := New(0)
	if _, err := eng.Generate(context.Background(), "hi", DefaultOptions()); !errors.Is(err, ErrNoModel) {
		t.Fatalf("expected ErrNoModel, got %v", err)
	}
}

func TestGenerateEmptyPrompt(t *testing.T) {
	eng := NewFromParts(flatModel{}, byteTok{})
	if _, err := eng.Generate(context.Background(), "", DefaultOptions()); !errors.Is(err, decode.ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestGenerateStream(t *testing.T) {
	eng := NewFromParts(echoModel{}, byteTok{})

	opts := DefaultOptions()
	opts.DoSample = false
	opts.RepetitionPenalty = 1.0
	opts.MaxLength = 8

	var pieces []string
	err := eng.GenerateStream(context.Background(), "abc", opts, func(piece string) bool {
		pieces = append(pieces, piece)
		return true
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	if got := strings.Join(pieces, ""); got != "defgh" {
		t.Fatalf("streamed %q", got)
	}
}

func TestGenerateStreamStopsEarly(t *testing.T) {
	eng := NewFromParts(echoModel{}, byteTok{})

	opts := DefaultOptions()
	opts.DoSample = false
	opts.RepetitionPenalty = 1.0
	opts.MaxLength = 100

	count := 0
	err := eng.GenerateStream(context.Background(), "a", opts, func(string) bool {
		count++
		return count < 2
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if count != 2 {
		t.Fatalf("callback ran %d times", count)
	}
}

func TestGenerateBeamSearch(t *testing.T) {
	eng := NewFromParts(flatModel{}, byteTok{})

	opts := DefaultOptions()
	opts.DoSample = false
	opts.RepetitionPenalty = 1.0
	opts.MaxLength = 12
	opts.NumBeams = 4
	opts.NumReturnSequences = 2

	outputs, err := eng.Generate(context.Background(), "ab", opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	for _, out := range outputs {
		if !strings.HasPrefix(out, "ab") {
			t.Errorf("output %q lost the prompt", out)
		}
	}
}
