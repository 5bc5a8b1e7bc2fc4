package score

import (
	"math"

	"guardian/internal/model"
)

const (
	// PartialPenalty is subtracted from the confidence once per partial
	// exemption signal.
	PartialPenalty = 0.15
	MinConfidence  = 0.10
)

var baseConfidence = map[model.MatchMode]float64{
	model.ModeStructuralPredicate: 0.90,
	model.ModeArgumentRegex:       0.75,
	model.ModeRawLineRegex:        0.60,
	model.ModeLiteralSubstring:    0.55,
}

// Base returns the confidence of an undemoted match found in mode.
func Base(mode model.MatchMode) float64 {
	if c, ok := baseConfidence[mode]; ok {
		return c
	}
	return baseConfidence[model.ModeLiteralSubstring]
}

// Severity lowers baseline one tier per partial signal, floored at low.
func Severity(baseline model.Severity, partials int) model.Severity {
	if partials < 0 {
		partials = 0
	}
	return baseline.Demote(partials)
}

// Confidence is the mode's base confidence minus PartialPenalty per partial
// signal, floored at MinConfidence and rounded to two decimals.
func Confidence(mode model.MatchMode, partials int) float64 {
	if partials < 0 {
		partials = 0
	}
	c := Base(mode) - PartialPenalty*float64(partials)
	if c < MinConfidence {
		c = MinConfidence
	}
	if c > 1 {
		c = 1
	}
	return math.Round(c*100) / 100
}
