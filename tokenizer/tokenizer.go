// Package tokenizer implements the byte-level BPE tokenizer used by
// GPT-2-family models. A model directory supplies vocab.json (token to id)
// and merges.txt (ranked merge rules).
package tokenizer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EndOfText is the GPT-2 end-of-sequence marker. It doubles as the pad
// token since GPT-2 has no dedicated padding id.
const EndOfText = "<|endoftext|>"

type pair struct {
	left, right string
}

// Tokenizer converts between UTF-8 text and token ids. Safe for concurrent
// use.
type Tokenizer struct {
	vocab map[string]int64
	inv   map[int64]string
	ranks map[pair]int
	enc   [256]rune
	dec   map[rune]byte
	eosID int64

	mu    sync.RWMutex
	cache map[string][]string
}

// New loads a tokenizer from a model directory containing vocab.json and
// merges.txt.
func New(dir string) (*Tokenizer, error) {
	vocabData, err := os.ReadFile(filepath.Join(dir, "vocab.json"))
	if err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}

	vocab := make(map[string]int64)
	if err := json.Unmarshal(vocabData, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocab: %w", err)
	}

	mergesFile, err := os.Open(filepath.Join(dir, "merges.txt"))
	if err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}
	defer mergesFile.Close()

	ranks := make(map[pair]int)
	scanner := bufio.NewScanner(mergesFile)
	rank := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed merge rule %q", line)
		}
		ranks[pair{fields[0], fields[1]}] = rank
		rank++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}

	t := &Tokenizer{
		vocab: vocab,
		inv:   make(map[int64]string, len(vocab)),
		ranks: ranks,
		enc:   byteToRune(),
		dec:   make(map[rune]byte, 256),
		eosID: -1,
		cache: make(map[string][]string),
	}
	for tok, id := range vocab {
		t.inv[id] = tok
	}
	for b, r := range t.enc {
		t.dec[r] = byte(b)
	}
	if id, ok := vocab[EndOfText]; ok {
		t.eosID = id
	}

	return t, nil
}

// byteToRune builds the GPT-2 byte-to-unicode table: printable latin bytes
// map to themselves, the rest to codepoints from U+0100 upward, so every
// byte sequence has a reversible string form.
func byteToRune() [256]rune {
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}

	var table [256]rune
	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			table[b] = rune(b)
		} else {
			table[b] = rune(256 + n)
			n++
		}
	}
	return table
}

// VocabSize returns the number of entries in the vocabulary.
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

// EOSTokenID returns the end-of-text id, or -1 if the vocabulary has none.
func (t *Tokenizer) EOSTokenID() int64 { return t.eosID }

// PadTokenID returns the padding id. GPT-2 pads with the end-of-text token.
func (t *Tokenizer) PadTokenID() int64 { return t.eosID }

// IsSpecial reports whether id is a special/control token.
func (t *Tokenizer) IsSpecial(id int64) bool {
	return t.eosID >= 0 && id == t.eosID
}

// Encode converts text to token ids. Byte-level BPE is total: any UTF-8
// input (and any byte sequence) has an encoding, so no error is returned.
func (t *Tokenizer) Encode(text string) []int64 {
	var ids []int64
	for _, piece := range pretokenize(text) {
		var sb strings.Builder
		for _, b := range []byte(piece) {
			sb.WriteRune(t.enc[b])
		}
		for _, sym := range t.bpe(sb.String()) {
			ids = t.appendSymbol(ids, sym)
		}
	}
	return ids
}

// appendSymbol resolves a merged symbol to ids, falling back to its
// individual characters when the merge result is missing from the
// vocabulary (possible with truncated vocab files).
func (t *Tokenizer) appendSymbol(ids []int64, sym string) []int64 {
	if id, ok := t.vocab[sym]; ok {
		return append(ids, id)
	}
	for _, r := range sym {
		if id, ok := t.vocab[string(r)]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Decode converts token ids back to text. When skipSpecial is set,
// special/control tokens are dropped before decoding.
func (t *Tokenizer) Decode(ids []int64, skipSpecial bool) string {
	var sb strings.Builder
	for _, id := range ids {
		if skipSpecial && t.IsSpecial(id) {
			continue
		}
		if tok, ok := t.inv[id]; ok {
			sb.WriteString(tok)
		}
	}

	out := make([]byte, 0, sb.Len())
	for _, r := range sb.String() {
		if b, ok := t.dec[r]; ok {
			out = append(out, b)
		}
	}
	return string(out)
}

// bpe merges a pre-tokenized word (already in byte-to-unicode form) into
// vocabulary symbols by repeatedly applying the lowest-ranked merge rule.
func (t *Tokenizer) bpe(word string) []string {
	t.mu.RLock()
	cached, ok := t.cache[word]
	t.mu.RUnlock()
	if ok {
		return cached
	}

	symbols := make([]string, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}

	for len(symbols) > 1 {
		bestRank := -1
		var bestPair pair
		for i := 0; i < len(symbols)-1; i++ {
			p := pair{symbols[i], symbols[i+1]}
			if r, ok := t.ranks[p]; ok && (bestRank < 0 || r < bestRank) {
				bestRank, bestPair = r, p
			}
		}
		if bestRank < 0 {
			break
		}

		merged := make([]string, 0, len(symbols))
		for i := 0; i < len(symbols); i++ {
			if i < len(symbols)-1 && symbols[i] == bestPair.left && symbols[i+1] == bestPair.right {
				merged = append(merged, symbols[i]+symbols[i+1])
				i++
			} else {
				merged = append(merged, symbols[i])
			}
		}
		symbols = merged
	}

	t.mu.Lock()
	t.cache[word] = symbols
	t.mu.Unlock()
	return symbols
}
