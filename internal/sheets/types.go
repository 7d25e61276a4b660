package sheets

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// Tab titles, in the order they appear in the spreadsheet.
const (
	TabSummary         = "Summary"
	TabClassifications = "Classifications"
	TabResolutions     = "Resolutions"
)

// Tabs lists every tab the writer maintains.
var Tabs = []string{TabSummary, TabClassifications, TabResolutions}

var (
	classificationHeader = []any{"dispute_id", "category", "confidence", "method", "explanation", "status"}
	resolutionHeader     = []any{"dispute_id", "action", "justification"}
)

// classificationValues renders the classifications table with the same
// columns as the CSV output.
func classificationValues(results []model.ClassificationResult) [][]any {
	values := make([][]any, 0, len(results)+1)
	values = append(values, classificationHeader)
	for _, r := range results {
		values = append(values, []any{
			r.DisputeID,
			string(r.Category),
			strconv.FormatFloat(r.Confidence, 'f', 4, 64),
			string(r.Method),
			r.Explanation,
			string(r.Status),
		})
	}
	return values
}

func resolutionValues(results []model.ResolutionResult) [][]any {
	values := make([][]any, 0, len(results)+1)
	values = append(values, resolutionHeader)
	for _, r := range results {
		values = append(values, []any{r.DisputeID, string(r.Action), r.Justification})
	}
	return values
}

// summaryValues renders the run summary. Breakdowns are sorted by key so
// repeated exports of the same run produce the same sheet.
func summaryValues(report *service.Report) [][]any {
	s := report.Summary
	values := [][]any{
		{"Dispute Triage Report"},
		{"Run ID", report.RunID},
		{"Total Disputes", s.TotalDisputes},
		{"Missing References", s.MissingReferences},
		{"Missing Text", s.MissingText},
		{"Duration", s.Duration.String()},
		{},
		{"Category", "Count"},
	}
	values = appendCounts(values, s.ByCategory)
	values = append(values, []any{}, []any{"Method", "Count"})
	values = appendCounts(values, s.ByMethod)
	values = append(values, []any{}, []any{"Action", "Count"})
	return appendCounts(values, s.ByAction)
}

func appendCounts[K ~string](values [][]any, counts map[K]int) [][]any {
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		values = append(values, []any{string(k), counts[k]})
	}
	return values
}

// tabRange addresses a cell range inside a tab.
func tabRange(tab, cells string) string {
	return fmt.Sprintf("'%s'!%s", tab, cells)
}
