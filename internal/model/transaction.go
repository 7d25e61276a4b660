package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single payment record referenced by disputes.
type Transaction struct {
	Timestamp  time.Time
	ID         string
	Merchant   string
	CustomerID string
	Status     string // Processor status (e.g., SUCCESS, FAILED, CANCELLED)
	Amount     decimal.Decimal

	// DuplicateFlag is set when the source data already marks the charge as a repeat.
	DuplicateFlag bool
}

// MerchantKey returns the normalized merchant name used for comparisons.
func (t *Transaction) MerchantKey() string {
	return strings.ToLower(strings.TrimSpace(t.Merchant))
}

// ChargeKey groups charges that could repeat one another: same merchant and same amount.
func (t *Transaction) ChargeKey() string {
	return t.MerchantKey() + "|" + t.Amount.StringFixed(2)
}

// SameCustomer reports whether two charges may belong to the same customer.
// A charge without a customer ID is not excluded on that basis.
func (t *Transaction) SameCustomer(other *Transaction) bool {
	a, b := strings.TrimSpace(t.CustomerID), strings.TrimSpace(other.CustomerID)
	if a == "" || b == "" {
		return true
	}
	return a == b
}
