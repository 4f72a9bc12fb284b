package engine

import "github.com/lmforge/tgen/decode"

// GenerateOptions holds generation parameters at the engine level, using
// Go-native types for ergonomic API usage. Fields mirror the decoding
// configuration; see the decode package for exact semantics.
type GenerateOptions struct {
	MaxLength          int
	NumReturnSequences int
	Temperature        float64
	TopK               int
	TopP               float64
	RepetitionPenalty  float64
	NoRepeatNGramSize  int
	NumBeams           int
	DoSample           bool
	EarlyStopping      bool
	Seed               int64
}

// DefaultOptions returns sensible generation defaults.
func DefaultOptions() GenerateOptions {
	return GenerateOptions{
		MaxLength:          128,
		NumReturnSequences: 1,
		Temperature:        0.8,
		TopK:               50,
		TopP:               0.95,
		RepetitionPenalty:  1.1,
		NumBeams:           1,
		DoSample:           true,
		Seed:               -1,
	}
}

// decodeOptions lowers engine options onto the decoding layer, filling in
// the tokenizer's special ids.
func (o GenerateOptions) decodeOptions(eos, pad int64) decode.Options {
	return decode.Options{
		MaxLength:          o.MaxLength,
		NumReturnSequences: o.NumReturnSequences,
		Temperature:        o.Temperature,
		TopK:               o.TopK,
		TopP:               o.TopP,
		RepetitionPenalty:  o.RepetitionPenalty,
		NoRepeatNGramSize:  o.NoRepeatNGramSize,
		NumBeams:           o.NumBeams,
		DoSample:           o.DoSample,
		EarlyStopping:      o.EarlyStopping,
		Seed:               o.Seed,
		EOSTokenID:         eos,
		PadTokenID:         pad,
	}
}
