package decode

import (
	"math"
	"math/rand"
	"slices"
	"sort"
)

var negInf = float32(math.Inf(-1))

// softmax converts logits to a probability distribution in place-safe
// fashion, subtracting the max for numerical stability.
func softmax(logits []float32) []float32 {
	m := slices.Max(logits)

	s := float32(0.0)
	r := make([]float32, len(logits))

	for i, v := range logits {
		e := float32(math.Exp(float64(v - m)))
		r[i] = e
		s += e
	}

	for i := range r {
		r[i] /= s
	}

	return r
}

// logSoftmax returns log-probabilities for the given logits.
func logSoftmax(logits []float32) []float64 {
	m := float64(slices.Max(logits))

	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - m)
	}
	logSum := m + math.Log(sum)

	r := make([]float64, len(logits))
	for i, v := range logits {
		r[i] = float64(v) - logSum
	}
	return r
}

// argmax returns the index of the largest logit.
func argmax(logits []float32) int64 {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return int64(best)
}

// applyTemperature scales logits in place. A temperature below 1 sharpens
// the distribution, above 1 flattens it.
func applyTemperature(logits []float32, temperature float64) {
	if temperature == 1 {
		return
	}
	t := float32(temperature)
	for i := range logits {
		logits[i] /= t
	}
}

// applyRepetitionPenalty discourages tokens already present in the
// sequence: positive logits are divided by the penalty, negative ones
// multiplied, so the push is always away from reuse.
func applyRepetitionPenalty(logits []float32, ids []int64, penalty float64) {
	if penalty == 1 {
		return
	}
	p := float32(penalty)
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for id := range seen {
		if id < 0 || int(id) >= len(logits) {
			continue
		}
		if logits[id] > 0 {
			logits[id] /= p
		} else {
			logits[id] *= p
		}
	}
}

// blockRepeatedNGrams masks every token that would complete an n-gram
// already present in ids.
func blockRepeatedNGrams(logits []float32, ids []int64, n int) {
	if n <= 0 || len(ids)+1 < n {
		return
	}

	type key string
	gram := func(s []int64) key {
		b := make([]byte, 0, len(s)*8)
		for _, v := range s {
			for shift := 0; shift < 64; shift += 8 {
				b = append(b, byte(v>>shift))
			}
		}
		return key(b)
	}

	banned := make(map[key][]int64)
	for i := 0; i+n <= len(ids); i++ {
		prefix := gram(ids[i : i+n-1])
		banned[prefix] = append(banned[prefix], ids[i+n-1])
	}

	prefix := gram(ids[len(ids)-n+1:])
	for _, id := range banned[prefix] {
		if id >= 0 && int(id) < len(logits) {
			logits[id] = negInf
		}
	}
}

// filterTopK keeps only the k largest logits, masking the rest.
func filterTopK(logits []float32, k int) {
	if k <= 0 || k >= len(logits) {
		return
	}

	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return logits[idx[i]] > logits[idx[j]]
	})

	for _, i := range idx[k:] {
		logits[i] = negInf
	}
}

// filterTopP keeps the smallest set of tokens whose cumulative probability
// reaches p (nucleus sampling), masking the rest. The most likely token is
// always kept.
func filterTopP(logits []float32, p float64) {
	if p <= 0 || p >= 1 {
		return
	}

	probs := softmax(logits)
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return probs[idx[i]] > probs[idx[j]]
	})

	var cum float64
	cut := len(idx)
	for i, j := range idx {
		cum += float64(probs[j])
		if cum >= p {
			cut = i + 1
			break
		}
	}

	for _, i := range idx[cut:] {
		logits[i] = negInf
	}
}

// sampleFrom draws an index from the distribution implied by the logits.
func sampleFrom(rng *rand.Rand, logits []float32) int64 {
	probs := softmax(logits)
	r := rng.Float64()

	var cum float64
	for i, p := range probs {
		cum += float64(p)
		if r < cum {
			return int64(i)
		}
	}
	return int64(len(probs) - 1)
}
