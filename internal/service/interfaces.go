// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/dispute-triage/internal/model"
)

// TransactionSource supplies the transactions table for a run.
type TransactionSource interface {
	// Transactions returns every transaction available from the source.
	Transactions(ctx context.Context) ([]model.Transaction, error)
}

// DateRange represents a time period with start and end dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ReportWriter exports the output tables of a run.
type ReportWriter interface {
	Write(ctx context.Context, report *Report) error
}

// Report is the complete output of one classification run.
type Report struct {
	RunID           string
	Classifications []model.ClassificationResult
	Resolutions     []model.ResolutionResult
	Summary         RunSummary
}

// RunSummary shows the results of a classification run.
type RunSummary struct {
	ByCategory        map[model.Category]int
	ByMethod          map[model.ClassificationMethod]int
	ByAction          map[model.Action]int
	TotalDisputes     int
	MissingReferences int
	MissingText       int
	Duration          time.Duration
}

// NewRunSummary returns a summary with its maps allocated.
func NewRunSummary() RunSummary {
	return RunSummary{
		ByCategory: make(map[model.Category]int),
		ByMethod:   make(map[model.ClassificationMethod]int),
		ByAction:   make(map[model.Action]int),
	}
}

// ProgressFunc is called after each dispute is classified.
type ProgressFunc func(done, total int)

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
