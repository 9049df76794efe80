package metrics

import (
	"fmt"
	"strings"

	lev "github.com/texttheater/golang-levenshtein/levenshtein"
)

// Granularity selects the token unit of an error rate
type Granularity string

const (
	Word Granularity = "wer" // Whitespace separated words
	Char Granularity = "cer" // Unicode code points
)

// ParseGranularity parses "wer"/"word" or "cer"/"char"
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wer", "word":
		return Word, nil
	case "cer", "char":
		return Char, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected wer or cer)", s)
	}
}

// Label returns the short upper-case name (WER or CER)
func (g Granularity) Label() string {
	return strings.ToUpper(string(g))
}

// unitCost is plain Levenshtein: insertion, deletion and substitution all cost 1
var unitCost = lev.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: lev.IdenticalRunes,
}

// Measurement is the raw outcome of aligning a hypothesis against a reference
type Measurement struct {
	Distance       int // Minimum number of token edits
	ReferenceUnits int // Number of reference tokens
}

// Rate normalizes the distance by the reference length. The denominator is at
// least 1, so the rate is defined for an empty reference and is not capped at 1.
func (m Measurement) Rate() float64 {
	return float64(m.Distance) / float64(max(1, m.ReferenceUnits))
}

// Measure computes the token edit distance between reference and hypothesis
func Measure(reference, hypothesis string, g Granularity) Measurement {
	ref, hyp := tokenize(reference, hypothesis, g)

	if len(ref) == 0 || len(hyp) == 0 {
		return Measurement{Distance: max(len(ref), len(hyp)), ReferenceUnits: len(ref)}
	}

	return Measurement{
		Distance:       lev.DistanceForStrings(hyp, ref, unitCost),
		ReferenceUnits: len(ref),
	}
}

// Rate is the word or character error rate of hypothesis against reference
func Rate(reference, hypothesis string, g Granularity) float64 {
	return Measure(reference, hypothesis, g).Rate()
}

// tokenize turns both strings into rune sequences. Words are interned so that
// each distinct word maps to one rune and the rune distance equals the word distance.
func tokenize(reference, hypothesis string, g Granularity) ([]rune, []rune) {
	if g != Word {
		return []rune(reference), []rune(hypothesis)
	}

	vocab := make(map[string]rune)
	intern := func(s string) []rune {
		words := strings.Fields(s)
		out := make([]rune, len(words))
		for i, w := range words {
			id, ok := vocab[w]
			if !ok {
				id = rune(len(vocab))
				vocab[w] = id
			}
			out[i] = id
		}
		return out
	}

	return intern(reference), intern(hypothesis)
}
