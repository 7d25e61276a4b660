// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DisputeStatus is the case-handling status of a dispute.
type DisputeStatus string

// Common dispute statuses. Source data may carry other values; they pass through unchanged.
const (
	DisputeStatusOpen         DisputeStatus = "Open"
	DisputeStatusManualReview DisputeStatus = "Manual Review"
	DisputeStatusAutoRefund   DisputeStatus = "Auto-Refund"
	DisputeStatusClosed       DisputeStatus = "Closed"
)

// Dispute is a customer complaint about a charge.
type Dispute struct {
	CreatedAt     time.Time
	ID            string
	TransactionID string
	CustomerID    string
	Description   string
	Status        DisputeStatus
	Amount        decimal.Decimal
}

// HasText reports whether the dispute carries any free-text description.
func (d *Dispute) HasText() bool {
	return strings.TrimSpace(d.Description) != ""
}
