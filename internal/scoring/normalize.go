// Package scoring turns a message snapshot and a validated rule set into
// quality and trust scores and a gate decision.
package scoring

import "strings"

// Normalize maps a raw metric onto [0,1] against a (min, ideal) pair:
// below min scores 0 (no partial credit), at or above ideal saturates at 1,
// and values in between interpolate linearly.
//
// Callers must guarantee ideal > min; rule-set validation enforces this at
// load time, so Normalize itself does not defend against division by zero.
func Normalize(value, min, ideal float64) float64 {
	if value < min {
		return 0
	}
	if value >= ideal {
		return 1
	}
	return (value - min) / (ideal - min)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Jaccard computes set similarity over whitespace-tokenized strings:
// |A∩B| / |A∪B|. Both inputs are expected to be lower-cased by the caller.
// Two empty token sets have similarity 0.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
