// Package correlation joins disputes to the transactions they reference.
package correlation

import (
	"log/slog"
	"time"

	"github.com/Veraticus/dispute-triage/internal/model"
)

// Record is a dispute augmented with its referenced transaction.
// When Matched is false the transaction fields are zero and must be treated as absent.
type Record struct {
	Dispute     model.Dispute
	Transaction model.Transaction
	Matched     bool
}

// Correlator indexes a transactions table for dispute lookups.
// It is read-only after construction and safe for concurrent use.
type Correlator struct {
	byID    map[string]int
	byKey   map[string][]int
	txns    []model.Transaction
	window  time.Duration
	logger  *slog.Logger
	repeats int
}

// New builds a correlator over txns. Repeated transaction IDs keep their first occurrence.
func New(txns []model.Transaction, window time.Duration) *Correlator {
	c := &Correlator{
		byID:   make(map[string]int, len(txns)),
		byKey:  make(map[string][]int),
		txns:   txns,
		window: window,
		logger: slog.Default().With("component", "correlation"),
	}

	for i := range txns {
		txn := &txns[i]
		if _, exists := c.byID[txn.ID]; exists {
			c.repeats++
			c.logger.Warn("repeated transaction id, keeping first occurrence", "transaction_id", txn.ID)
		} else {
			c.byID[txn.ID] = i
		}

		key := txn.ChargeKey()
		c.byKey[key] = append(c.byKey[key], i)
	}

	c.logger.Debug("indexed transactions",
		"transactions", len(txns),
		"charge_groups", len(c.byKey),
		"repeated_ids", c.repeats)

	return c
}

// Len returns the number of indexed transactions.
func (c *Correlator) Len() int {
	return len(c.txns)
}

// Lookup returns the transaction with the given ID.
func (c *Correlator) Lookup(id string) (model.Transaction, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Transaction{}, false
	}
	return c.txns[i], true
}

// Correlate joins a dispute to its referenced transaction.
func (c *Correlator) Correlate(d model.Dispute) Record {
	txn, ok := c.Lookup(d.TransactionID)
	return Record{Dispute: d, Transaction: txn, Matched: ok}
}

// DuplicateOf finds the charge that txn most likely repeats: another transaction
// with the same merchant and amount, a compatible customer, a different ID, and a
// timestamp within the window. The nearest in time wins; ties go to the earlier row.
func (c *Correlator) DuplicateOf(txn model.Transaction) (model.Transaction, bool) {
	if txn.Timestamp.IsZero() {
		return model.Transaction{}, false
	}

	best := -1
	var bestDelta time.Duration
	for _, i := range c.byKey[txn.ChargeKey()] {
		candidate := &c.txns[i]
		if candidate.ID == txn.ID || candidate.Timestamp.IsZero() {
			continue
		}
		if !candidate.Amount.Equal(txn.Amount) || !txn.SameCustomer(candidate) {
			continue
		}

		delta := candidate.Timestamp.Sub(txn.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta > c.window {
			continue
		}
		if best == -1 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}

	if best == -1 {
		return model.Transaction{}, false
	}
	return c.txns[best], true
}
