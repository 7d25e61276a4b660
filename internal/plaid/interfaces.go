package plaid

import (
	"context"
	"time"

	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// TransactionFetcher fetches transactions posted within a date range.
type TransactionFetcher interface {
	GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, error)
}

// Source adapts a TransactionFetcher to service.TransactionSource.
type Source struct {
	Fetcher TransactionFetcher
	Range   service.DateRange
}

var _ service.TransactionSource = Source{}

// Transactions implements service.TransactionSource.
func (s Source) Transactions(ctx context.Context) ([]model.Transaction, error) {
	return s.Fetcher.GetTransactions(ctx, s.Range.Start, s.Range.End)
}
