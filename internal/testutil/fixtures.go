// Package testutil provides fixture builders shared by the triage tests.
package testutil

import (
	"time"

	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/shopspring/decimal"
)

// BaseTime anchors fixture timestamps so tests never depend on the clock.
var BaseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// TxnBuilder builds a model.Transaction with readable defaults.
type TxnBuilder struct {
	txn model.Transaction
}

// Txn starts a successful 25.00 charge at BaseTime for customer C1.
func Txn(id string) *TxnBuilder {
	return &TxnBuilder{txn: model.Transaction{
		ID:         id,
		Merchant:   "Acme Store",
		CustomerID: "C1",
		Status:     "SUCCESS",
		Amount:     decimal.RequireFromString("25.00"),
		Timestamp:  BaseTime,
	}}
}

// Merchant sets the merchant name.
func (b *TxnBuilder) Merchant(name string) *TxnBuilder {
	b.txn.Merchant = name
	return b
}

// Amount sets the amount from a decimal string.
func (b *TxnBuilder) Amount(amount string) *TxnBuilder {
	b.txn.Amount = decimal.RequireFromString(amount)
	return b
}

// Customer sets the customer ID.
func (b *TxnBuilder) Customer(id string) *TxnBuilder {
	b.txn.CustomerID = id
	return b
}

// Status sets the processor status.
func (b *TxnBuilder) Status(status string) *TxnBuilder {
	b.txn.Status = status
	return b
}

// After places the charge d after BaseTime.
func (b *TxnBuilder) After(d time.Duration) *TxnBuilder {
	b.txn.Timestamp = BaseTime.Add(d)
	return b
}

// NoTimestamp clears the timestamp.
func (b *TxnBuilder) NoTimestamp() *TxnBuilder {
	b.txn.Timestamp = time.Time{}
	return b
}

// Flagged marks the charge as a known repeat.
func (b *TxnBuilder) Flagged() *TxnBuilder {
	b.txn.DuplicateFlag = true
	return b
}

// Build returns the transaction.
func (b *TxnBuilder) Build() model.Transaction {
	return b.txn
}

// Dispute returns an open dispute against txnID.
func Dispute(id, txnID, description string) model.Dispute {
	return model.Dispute{
		ID:            id,
		TransactionID: txnID,
		CustomerID:    "C1",
		Description:   description,
		Status:        model.DisputeStatusOpen,
		Amount:        decimal.RequireFromString("25.00"),
		CreatedAt:     BaseTime.Add(24 * time.Hour),
	}
}
