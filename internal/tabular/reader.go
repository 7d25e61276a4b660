package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// timestampLayouts are tried in order when parsing timestamp columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// table iterates the data rows of a CSV file with their line numbers.
type table struct {
	reader *csv.Reader
	header *header
	file   string
}

func openTable(r io.Reader, file, primaryID string, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	record, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s is empty", common.ErrMalformedInput, file)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrMalformedInput, file, err)
	}

	h, err := parseHeader(file, record, primaryID, required...)
	if err != nil {
		return nil, err
	}
	return &table{reader: reader, header: h, file: file}, nil
}

// next returns the next record and its line, or io.EOF.
func (t *table) next() ([]string, int, error) {
	record, err := t.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, io.EOF
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", common.ErrMalformedInput, t.file, err)
	}
	line, _ := t.reader.FieldPos(0)
	return record, line, nil
}

func (t *table) errorf(line int, format string, args ...any) error {
	return fmt.Errorf("%w: %s line %d: %s", common.ErrMalformedInput, t.file, line, fmt.Sprintf(format, args...))
}

// ReadDisputes parses a disputes table. Dispute IDs must be unique.
func ReadDisputes(r io.Reader, file string) ([]model.Dispute, error) {
	t, err := openTable(r, file, ColDisputeID, ColDisputeID, ColTransactionID, ColDescription)
	if err != nil {
		return nil, err
	}

	var disputes []model.Dispute
	seen := make(map[string]int)
	for {
		record, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		id := t.header.get(record, ColDisputeID)
		if id == "" {
			return nil, t.errorf(line, "dispute_id is empty")
		}
		if first, dup := seen[id]; dup {
			return nil, t.errorf(line, "dispute %s already appears on line %d", id, first)
		}
		seen[id] = line

		amount, err := parseAmount(t.header.get(record, ColAmount))
		if err != nil {
			return nil, t.errorf(line, "invalid amount: %v", err)
		}
		createdAt, err := parseTimestamp(t.header.get(record, ColTimestamp))
		if err != nil {
			return nil, t.errorf(line, "invalid timestamp: %v", err)
		}

		status := model.DisputeStatus(t.header.get(record, ColStatus))
		if status == "" {
			status = model.DisputeStatusOpen
		}

		// Description is kept verbatim; blank text is detected downstream.
		var description string
		if i, ok := t.header.index[ColDescription]; ok && i < len(record) {
			description = record[i]
		}

		disputes = append(disputes, model.Dispute{
			ID:            id,
			TransactionID: t.header.get(record, ColTransactionID),
			CustomerID:    t.header.get(record, ColCustomerID),
			Description:   description,
			Status:        status,
			Amount:        amount,
			CreatedAt:     createdAt,
		})
	}

	return disputes, nil
}

// ReadTransactions parses a transactions table. Repeated transaction IDs are
// kept; the correlator resolves them.
func ReadTransactions(r io.Reader, file string) ([]model.Transaction, error) {
	t, err := openTable(r, file, ColTransactionID, ColTransactionID, ColAmount)
	if err != nil {
		return nil, err
	}
	if !t.header.has(ColTimestamp) {
		slog.Warn("Transactions table has no timestamp column, repeated charges cannot be derived", "file", file)
	}

	var txns []model.Transaction
	for {
		record, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		id := t.header.get(record, ColTransactionID)
		if id == "" {
			return nil, t.errorf(line, "transaction_id is empty")
		}

		raw := t.header.get(record, ColAmount)
		if raw == "" {
			return nil, t.errorf(line, "amount is empty")
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, t.errorf(line, "invalid amount: %v", err)
		}

		ts, err := parseTimestamp(t.header.get(record, ColTimestamp))
		if err != nil {
			return nil, t.errorf(line, "invalid timestamp: %v", err)
		}

		flag, err := parseFlag(t.header.get(record, ColDuplicateFlag))
		if err != nil {
			return nil, t.errorf(line, "invalid duplicate_flag: %v", err)
		}

		txns = append(txns, model.Transaction{
			ID:            id,
			Amount:        amount,
			Merchant:      t.header.get(record, ColMerchant),
			CustomerID:    t.header.get(record, ColCustomerID),
			Status:        t.header.get(record, ColStatus),
			Timestamp:     ts,
			DuplicateFlag: flag,
		})
	}

	return txns, nil
}

// LoadDisputes reads a disputes CSV file.
func LoadDisputes(path string) ([]model.Dispute, error) {
	f, err := os.Open(config.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open disputes file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("Failed to close disputes file", "error", closeErr)
		}
	}()
	return ReadDisputes(f, path)
}

// CSVTransactions reads the transactions table from a CSV file.
type CSVTransactions struct {
	Path string
}

var _ service.TransactionSource = CSVTransactions{}

// Transactions implements service.TransactionSource.
func (c CSVTransactions) Transactions(ctx context.Context) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(config.ExpandPath(c.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open transactions file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("Failed to close transactions file", "error", closeErr)
		}
	}()
	return ReadTransactions(f, c.Path)
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	return decimal.NewFromString(s)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized format %q", s)
}

func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "f", "no", "n":
		return false, nil
	case "1", "true", "t", "yes", "y":
		return true, nil
	default:
		return false, fmt.Errorf("expected true or false, got %q", s)
	}
}
