// Package tabular reads the dispute and transaction tables and writes the
// classification and resolution tables as delimited text.
package tabular

import (
	"fmt"
	"strings"

	"github.com/Veraticus/dispute-triage/internal/common"
)

// Canonical column names.
const (
	ColDisputeID     = "dispute_id"
	ColTransactionID = "transaction_id"
	ColDescription   = "description"
	ColAmount        = "amount"
	ColStatus        = "status"
	ColCustomerID    = "customer_id"
	ColTimestamp     = "timestamp"
	ColMerchant      = "merchant"
	ColDuplicateFlag = "duplicate_flag"
)

// Alternate header spellings found in exported sample data.
var aliases = map[string]string{
	"txn_id":       ColTransactionID,
	"created_at":   ColTimestamp,
	"is_duplicate": ColDuplicateFlag,
	"duplicate":    ColDuplicateFlag,
	"customer":     ColCustomerID,
	"text":         ColDescription,
	"id":           "",
}

// header maps canonical column names to their index in a record.
type header struct {
	index map[string]int
}

// parseHeader normalizes column names and checks that required columns exist.
// primaryID names the table's own ID column, which "id" is an alias for.
func parseHeader(file string, record []string, primaryID string, required ...string) (*header, error) {
	h := &header{index: make(map[string]int, len(record))}

	for i, raw := range record {
		name := normalizeColumn(raw)
		if canonical, ok := aliases[name]; ok {
			name = canonical
			if name == "" {
				name = primaryID
			}
		}
		if name == "" {
			continue
		}
		if _, dup := h.index[name]; dup {
			return nil, fmt.Errorf("%w: %s line 1: column %q appears twice", common.ErrMalformedInput, file, name)
		}
		h.index[name] = i
	}

	var missing []string
	for _, col := range required {
		if _, ok := h.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s line 1: missing required columns: %s",
			common.ErrMalformedInput, file, strings.Join(missing, ", "))
	}

	return h, nil
}

func normalizeColumn(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

// get returns the trimmed value of a column, or "" when the column is absent
// or the record is short.
func (h *header) get(record []string, col string) string {
	i, ok := h.index[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (h *header) has(col string) bool {
	_, ok := h.index[col]
	return ok
}
