package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/dispute-triage/internal/classification"
	"github.com/Veraticus/dispute-triage/internal/correlation"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// Run classifies every dispute against the transactions table and suggests a
// resolution for each. Output rows follow input order regardless of the
// worker count. Only context cancellation fails a run.
func (e *Engine) Run(ctx context.Context, disputes []model.Dispute, txns []model.Transaction) (*service.Report, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := e.logger.With("run_id", runID)

	logger.Info("Starting classification run",
		"disputes", len(disputes),
		"transactions", len(txns),
		"workers", e.opts.Workers)

	corr := correlation.New(txns, e.lex.DuplicateWindow)
	detector := classification.NewDuplicateDetector(corr, model.Category(e.lex.DuplicateCategory))

	classifications := make([]model.ClassificationResult, len(disputes))
	resolutions := make([]model.ResolutionResult, len(disputes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	var done atomic.Int64
	total := len(disputes)

	for i := range disputes {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			result := e.classify(gctx, corr, detector, disputes[i])
			classifications[i] = result
			resolutions[i] = e.suggester.Suggest(result)

			if e.opts.Progress != nil {
				e.opts.Progress(int(done.Add(1)), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("classification run %s interrupted: %w", runID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("classification run %s interrupted: %w", runID, err)
	}

	report := &service.Report{
		RunID:           runID,
		Classifications: classifications,
		Resolutions:     resolutions,
		Summary:         Summarize(classifications, resolutions),
	}
	report.Summary.Duration = time.Since(start)

	logger.Info("Classification run complete",
		"disputes", report.Summary.TotalDisputes,
		"missing_references", report.Summary.MissingReferences,
		"missing_text", report.Summary.MissingText,
		"duration", report.Summary.Duration)

	return report, nil
}

// classify runs the waterfall for one dispute: data rule, fuzzy keyword,
// semantic similarity, then the default category. The first hit wins.
func (e *Engine) classify(ctx context.Context, corr *correlation.Correlator, detector *classification.DuplicateDetector, d model.Dispute) model.ClassificationResult {
	rec := corr.Correlate(d)
	hasText := d.HasText()

	var missing []model.MissingInput
	if !rec.Matched {
		missing = append(missing, model.MissingReference)
	}
	if !hasText {
		missing = append(missing, model.MissingText)
	}

	match := detector.Detect(rec)
	if match == nil && hasText {
		match = e.fuzzy.Match(d.Description)
	}
	if match == nil && hasText && e.semantic != nil {
		m, err := e.semantic.Match(ctx, d.Description)
		if err != nil {
			e.logger.Debug("Semantic stage skipped", "dispute_id", d.ID, "error", err)
		} else {
			match = m
		}
	}
	if match == nil {
		match = e.fallback(d, missing)
	}

	evidence := match.Evidence
	evidence.Missing = missing
	if evidence.TransactionID == "" {
		evidence.TransactionID = strings.TrimSpace(d.TransactionID)
	}
	if rec.Matched {
		evidence.TransactionStatus = rec.Transaction.Status
		status := strings.ToUpper(strings.TrimSpace(rec.Transaction.Status))
		evidence.Corroborated = status != "" && e.corroborating[match.Category][status]
	}

	status := d.Status
	if strings.TrimSpace(string(status)) == "" {
		status = model.DisputeStatusOpen
	}

	return model.ClassificationResult{
		DisputeID:   d.ID,
		Category:    match.Category,
		Method:      match.Method,
		Confidence:  match.Confidence,
		Explanation: match.Explanation,
		Status:      status,
		Evidence:    evidence,
	}
}

func (e *Engine) fallback(d model.Dispute, missing []model.MissingInput) *classification.Match {
	var reasons []string
	for _, m := range missing {
		switch m {
		case model.MissingReference:
			if strings.TrimSpace(d.TransactionID) == "" {
				reasons = append(reasons, "dispute does not reference a transaction")
			} else {
				reasons = append(reasons, fmt.Sprintf("transaction %s not found", d.TransactionID))
			}
		case model.MissingText:
			reasons = append(reasons, "dispute has no description")
		}
	}

	explanation := "No rule matched; assigned the default category."
	if len(reasons) > 0 {
		explanation = fmt.Sprintf("No rule matched (%s); assigned the default category.", strings.Join(reasons, ", "))
	}

	return &classification.Match{
		Category:    model.Category(e.lex.DefaultCategory),
		Method:      model.MethodDefault,
		Confidence:  e.lex.DefaultConfidence,
		Explanation: explanation,
	}
}
