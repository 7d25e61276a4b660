package classification

import (
	"fmt"

	"github.com/Veraticus/dispute-triage/internal/correlation"
	"github.com/Veraticus/dispute-triage/internal/model"
)

// DuplicateDetector flags disputes whose transaction repeats another charge.
type DuplicateDetector struct {
	correlator *correlation.Correlator
	category   model.Category
}

// NewDuplicateDetector creates a detector that assigns category on a hit.
func NewDuplicateDetector(c *correlation.Correlator, category model.Category) *DuplicateDetector {
	return &DuplicateDetector{correlator: c, category: category}
}

// Detect fires when the correlated transaction is flagged as a repeat by the
// source data or repeats another transaction in the table. An unmatched
// record never fires.
func (d *DuplicateDetector) Detect(rec correlation.Record) *Match {
	if !rec.Matched {
		return nil
	}

	txn := rec.Transaction
	dup, derived := d.correlator.DuplicateOf(txn)
	if !txn.DuplicateFlag && !derived {
		return nil
	}

	evidence := model.Evidence{
		TransactionID:     txn.ID,
		TransactionStatus: txn.Status,
	}

	var explanation string
	switch {
	case derived:
		evidence.DuplicateOf = dup.ID
		gap := dup.Timestamp.Sub(txn.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		explanation = fmt.Sprintf("Transaction %s repeats transaction %s: same merchant and amount %s within %s.",
			txn.ID, dup.ID, txn.Amount.StringFixed(2), gap)
		if txn.DuplicateFlag {
			explanation = fmt.Sprintf("Transaction %s is flagged as a duplicate and repeats transaction %s: same merchant and amount %s within %s.",
				txn.ID, dup.ID, txn.Amount.StringFixed(2), gap)
		}
	default:
		explanation = fmt.Sprintf("Transaction %s is flagged as a duplicate charge in the transaction data.", txn.ID)
	}

	return &Match{
		Category:    d.category,
		Method:      model.MethodDataRule,
		Confidence:  1.0,
		Explanation: explanation,
		Evidence:    evidence,
	}
}
