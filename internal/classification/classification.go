// Package classification provides the matching stages of the dispute waterfall.
package classification

import "github.com/Veraticus/dispute-triage/internal/model"

// Match is a stage's category assignment for one dispute.
type Match struct {
	Category    model.Category
	Method      model.ClassificationMethod
	Explanation string
	Evidence    model.Evidence
	Confidence  float64
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
