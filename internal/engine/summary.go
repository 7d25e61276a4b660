package engine

import (
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// Summarize counts a run's results per category, method and action.
func Summarize(classifications []model.ClassificationResult, resolutions []model.ResolutionResult) service.RunSummary {
	summary := service.NewRunSummary()
	summary.TotalDisputes = len(classifications)

	for _, c := range classifications {
		summary.ByCategory[c.Category]++
		summary.ByMethod[c.Method]++
		if c.Evidence.HasMissing(model.MissingReference) {
			summary.MissingReferences++
		}
		if c.Evidence.HasMissing(model.MissingText) {
			summary.MissingText++
		}
	}
	for _, r := range resolutions {
		summary.ByAction[r.Action]++
	}

	return summary
}
