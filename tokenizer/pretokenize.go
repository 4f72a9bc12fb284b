package tokenizer

import "unicode"

// pretokenize splits text into the chunks GPT-2 applies BPE to: common
// contraction suffixes, optionally space-prefixed runs of letters, digits
// or other symbols, and whitespace runs. The reference tokenizer expresses
// this as a regular expression with a negative lookahead, which Go's RE2
// engine cannot run, so the split is done with an explicit scan. A
// whitespace run followed by text gives up its final space to the next
// chunk.
func pretokenize(text string) []string {
	r := []rune(text)
	n := len(r)

	var out []string
	i := 0
	for i < n {
		c := r[i]

		if c == '\'' {
			if m := contractionLen(r[i:]); m > 0 {
				out = append(out, string(r[i:i+m]))
				i += m
				continue
			}
		}

		// A single leading space binds to the following run.
		if c == ' ' && i+1 < n && !unicode.IsSpace(r[i+1]) {
			k := classEnd(r, i+1)
			out = append(out, string(r[i:k]))
			i = k
			continue
		}

		if unicode.IsSpace(c) {
			k := i
			for k < n && unicode.IsSpace(r[k]) {
				k++
			}
			switch {
			case k == n:
				// trailing whitespace is kept whole
				out = append(out, string(r[i:k]))
				i = k
			case k-i > 1:
				// hold back the last whitespace rune for the next chunk
				out = append(out, string(r[i:k-1]))
				i = k - 1
			default:
				// single non-space whitespace rune, e.g. \t or \n
				out = append(out, string(r[i:k]))
				i = k
			}
			continue
		}

		k := classEnd(r, i)
		out = append(out, string(r[i:k]))
		i = k
	}

	return out
}

// classEnd returns the end of the maximal run starting at j whose runes
// share the class of r[j]: letters, digits, or other non-whitespace.
func classEnd(r []rune, j int) int {
	switch {
	case unicode.IsLetter(r[j]):
		k := j
		for k < len(r) && unicode.IsLetter(r[k]) {
			k++
		}
		return k
	case unicode.IsNumber(r[j]):
		k := j
		for k < len(r) && unicode.IsNumber(r[k]) {
			k++
		}
		return k
	default:
		k := j
		for k < len(r) && !unicode.IsSpace(r[k]) && !unicode.IsLetter(r[k]) && !unicode.IsNumber(r[k]) {
			k++
		}
		return k
	}
}

// contractionLen matches the contraction suffixes GPT-2 splits off as
// their own chunks ('s 't 're 've 'm 'll 'd) and returns the match length
// in runes, or 0.
func contractionLen(r []rune) int {
	if len(r) < 2 || r[0] != '\'' {
		return 0
	}
	switch r[1] {
	case 's', 't', 'm', 'd':
		return 2
	case 'r', 'v':
		if len(r) >= 3 && r[2] == 'e' {
			return 3
		}
	case 'l':
		if len(r) >= 3 && r[2] == 'l' {
			return 3
		}
	}
	return 0
}
