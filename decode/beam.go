package decode

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
)

// hypothesis is a partial or finished beam with the cumulative
// log-probability of its generated tokens.
type hypothesis struct {
	ids   []int64
	score float64
}

// normalized returns the length-normalized score used to rank finished
// hypotheses, so longer continuations are not penalized merely for
// accumulating more log-probability mass.
func (h hypothesis) normalized(promptLen int) float64 {
	gen := len(h.ids) - promptLen
	if gen < 1 {
		gen = 1
	}
	return h.score / float64(gen)
}

// beamSearch expands NumBeams hypotheses in lockstep, collecting finished
// ones when they emit EOS. Repetition penalties, n-gram blocking and
// temperature reshape the per-step distribution exactly as in the sampling
// path; expansion itself stays deterministic, keeping results reproducible.
func beamSearch(ctx context.Context, m Model, prompt []int64, opts Options) ([][]int64, error) {
	beams := []hypothesis{{ids: slices.Clone(prompt)}}
	var done []hypothesis

	for len(beams) > 0 && len(beams[0].ids) < opts.MaxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var cands []hypothesis
		for _, b := range beams {
			logits, err := m.Logits(ctx, b.ids)
			if err != nil {
				return nil, fmt.Errorf("model step at length %d: %w", len(b.ids), err)
			}
			logits = slices.Clone(logits)

			applyRepetitionPenalty(logits, b.ids, opts.RepetitionPenalty)
			blockRepeatedNGrams(logits, b.ids, opts.NoRepeatNGramSize)
			if opts.DoSample {
				applyTemperature(logits, opts.Temperature)
			}

			logProbs := logSoftmax(logits)
			for _, t := range topIndices(logProbs, 2*opts.NumBeams) {
				if math.IsInf(logProbs[t], -1) {
					continue
				}
				next := append(slices.Clone(b.ids), int64(t))
				cands = append(cands, hypothesis{ids: next, score: b.score + logProbs[t]})
			}
		}

		sort.SliceStable(cands, func(i, j int) bool {
			return cands[i].score > cands[j].score
		})

		var next []hypothesis
		for _, c := range cands {
			last := c.ids[len(c.ids)-1]
			if opts.EOSTokenID >= 0 && last == opts.EOSTokenID {
				done = append(done, c)
			} else {
				next = append(next, c)
			}
			if len(next) == opts.NumBeams {
				break
			}
		}
		beams = next

		if opts.EarlyStopping && len(done) >= opts.NumBeams {
			break
		}
	}

	// beams still open when the length budget runs out count as finished
	done = append(done, beams...)
	if len(done) == 0 {
		return nil, fmt.Errorf("beam search produced no hypotheses")
	}

	promptLen := len(prompt)
	sort.SliceStable(done, func(i, j int) bool {
		return done[i].normalized(promptLen) > done[j].normalized(promptLen)
	})

	k := opts.NumReturnSequences
	if k > len(done) {
		k = len(done)
	}
	out := make([][]int64, 0, k)
	for _, h := range done[:k] {
		out = append(out, h.ids)
	}
	return out, nil
}

// topIndices returns the indices of the n largest values, ordered
// descending.
func topIndices(values []float64, n int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return values[idx[i]] > values[idx[j]]
	})
	if n > len(idx) {
		n = len(idx)
	}
	return idx[:n]
}
