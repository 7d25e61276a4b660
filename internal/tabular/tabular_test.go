package tabular

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/embedding"
	"github.com/Veraticus/dispute-triage/internal/engine"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const disputesCSV = `dispute_id,txn_id,description,amount,status,customer_id,created_at
D1,T1,duplicate charge on my card,25.00,Open,C1,2024-03-02 10:00:00
D2,T2,"I want a refund, please","$1,200.50",,C2,
D3,T404,,0,Closed,,2024-03-02
`

const transactionsCSV = `Transaction_ID,Amount,Merchant,Customer_ID,Status,Timestamp,Is_Duplicate
T1,25.00,Acme Store,C1,SUCCESS,2024-03-01T09:00:00Z,true
T2,1200.50,Bookshop,C2,FAILED,2024-03-01 11:30:00,0
T3,25.00,Acme Store,C1,SUCCESS,2024-03-01T09:02:00Z,
`

func TestReadDisputes(t *testing.T) {
	disputes, err := ReadDisputes(strings.NewReader(disputesCSV), "disputes.csv")
	require.NoError(t, err)
	require.Len(t, disputes, 3)

	d1 := disputes[0]
	assert.Equal(t, "D1", d1.ID)
	assert.Equal(t, "T1", d1.TransactionID)
	assert.Equal(t, "C1", d1.CustomerID)
	assert.Equal(t, "duplicate charge on my card", d1.Description)
	assert.Equal(t, model.DisputeStatusOpen, d1.Status)
	assert.True(t, decimal.RequireFromString("25").Equal(d1.Amount))
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), d1.CreatedAt)

	d2 := disputes[1]
	assert.Equal(t, "I want a refund, please", d2.Description)
	assert.Equal(t, model.DisputeStatusOpen, d2.Status, "blank status defaults to Open")
	assert.True(t, d2.CreatedAt.IsZero())

	d3 := disputes[2]
	assert.False(t, d3.HasText())
	assert.Equal(t, model.DisputeStatusClosed, d3.Status)
}

func TestReadTransactions(t *testing.T) {
	txns, err := ReadTransactions(strings.NewReader(transactionsCSV), "transactions.csv")
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, "T1", txns[0].ID)
	assert.True(t, txns[0].DuplicateFlag)
	assert.Equal(t, "Acme Store", txns[0].Merchant)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), txns[0].Timestamp)

	assert.True(t, decimal.RequireFromString("1200.50").Equal(txns[1].Amount))
	assert.Equal(t, "FAILED", txns[1].Status)
	assert.False(t, txns[1].DuplicateFlag)
	assert.False(t, txns[2].DuplicateFlag)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		disputes bool
		wantMsg  string
	}{
		{name: "empty disputes", input: "", disputes: true, wantMsg: "is empty"},
		{name: "missing description column", input: "dispute_id,transaction_id\nD1,T1\n", disputes: true, wantMsg: "missing required columns: description"},
		{name: "repeated column", input: "dispute_id,id,transaction_id,description\n", disputes: true, wantMsg: `column "dispute_id" appears twice`},
		{name: "empty dispute id", input: "dispute_id,transaction_id,description\nD1,T1,x\n,T2,y\n", disputes: true, wantMsg: "line 3: dispute_id is empty"},
		{name: "repeated dispute id", input: "dispute_id,transaction_id,description\nD1,T1,x\nD1,T2,y\n", disputes: true, wantMsg: "line 3: dispute D1 already appears on line 2"},
		{name: "bad dispute amount", input: "dispute_id,transaction_id,description,amount\nD1,T1,x,ten\n", disputes: true, wantMsg: "line 2: invalid amount"},
		{name: "missing amount column", input: "transaction_id,merchant\nT1,Acme\n", wantMsg: "missing required columns: amount"},
		{name: "blank amount", input: "transaction_id,amount\nT1,\n", wantMsg: "line 2: amount is empty"},
		{name: "bad timestamp", input: "transaction_id,amount,timestamp\nT1,5,yesterday\n", wantMsg: "line 2: invalid timestamp"},
		{name: "bad flag", input: "transaction_id,amount,duplicate_flag\nT1,5,maybe\n", wantMsg: "line 2: invalid duplicate_flag"},
		{name: "unterminated quote", input: "transaction_id,amount\nT1,\"5\n", wantMsg: "transactions.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.disputes {
				_, err = ReadDisputes(strings.NewReader(tt.input), "disputes.csv")
			} else {
				_, err = ReadTransactions(strings.NewReader(tt.input), "transactions.csv")
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrMalformedInput))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseHelpers(t *testing.T) {
	amount, err := parseAmount("$1,234.5")
	require.NoError(t, err)
	assert.Equal(t, "1234.50", amount.StringFixed(2))

	for _, s := range []string{"2024-03-01T09:00:00Z", "2024-03-01 09:00:00", "03/01/2024 09:00", "2024-03-01"} {
		ts, err := parseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, 2024, ts.Year())
		assert.Equal(t, time.March, ts.Month())
	}

	for _, s := range []string{"Y", "yes", "TRUE", "1"} {
		flag, err := parseFlag(strings.ToLower(s))
		require.NoError(t, err)
		assert.True(t, flag, s)
	}
}

func TestWriteTables(t *testing.T) {
	var buf bytes.Buffer
	err := WriteClassifications(&buf, []model.ClassificationResult{
		{DisputeID: "D1", Category: model.CategoryDuplicateCharge, Confidence: 1, Method: model.MethodDataRule, Explanation: "Transaction T1 is flagged.", Status: model.DisputeStatusOpen},
		{DisputeID: "D2", Category: model.CategoryRefundPending, Confidence: 0.83, Method: model.MethodFuzzyMatch, Explanation: `matched "refund", score 83`, Status: model.DisputeStatusManualReview},
	})
	require.NoError(t, err)
	assert.Equal(t, "dispute_id,category,confidence,method,explanation,status\n"+
		"D1,Duplicate Charge,1.0000,DataRule,Transaction T1 is flagged.,Open\n"+
		"D2,Refund Pending,0.8300,FuzzyMatch,\"matched \"\"refund\"\", score 83\",Manual Review\n", buf.String())

	buf.Reset()
	err = WriteResolutions(&buf, []model.ResolutionResult{
		{DisputeID: "D1", Action: model.ActionAutoRefund, Justification: "Duplicate. Reason: T1."},
	})
	require.NoError(t, err)
	assert.Equal(t, "dispute_id,action,justification\nD1,Auto-Refund,Duplicate. Reason: T1.\n", buf.String())
}

func runOnce(t *testing.T, workers int) (string, string) {
	t.Helper()
	disputes, err := ReadDisputes(strings.NewReader(disputesCSV), "disputes.csv")
	require.NoError(t, err)
	txns, err := ReadTransactions(strings.NewReader(transactionsCSV), "transactions.csv")
	require.NoError(t, err)

	embedder, err := embedding.NewHashingEmbedder(256)
	require.NoError(t, err)
	e, err := engine.New(context.Background(), config.DefaultLexicon(), embedder, engine.Options{
		Workers: workers,
		Retry:   service.RetryOptions{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	require.NoError(t, err)

	report, err := e.Run(context.Background(), disputes, txns)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, DirWriter{Dir: dir}.Write(context.Background(), report))

	classifications, err := os.ReadFile(filepath.Join(dir, ClassificationsFile))
	require.NoError(t, err)
	resolutions, err := os.ReadFile(filepath.Join(dir, ResolutionsFile))
	require.NoError(t, err)
	return string(classifications), string(resolutions)
}

func TestOutput_ByteIdenticalAcrossRuns(t *testing.T) {
	c1, r1 := runOnce(t, 1)
	c2, r2 := runOnce(t, 1)
	c3, r3 := runOnce(t, 8)

	assert.Equal(t, c1, c2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, c1, c3)
	assert.Equal(t, r1, r3)

	lines := strings.Split(strings.TrimSpace(c1), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "D1,Duplicate Charge,1.0000,DataRule,"))
	assert.True(t, strings.HasPrefix(lines[2], "D2,Refund Pending,1.0000,FuzzyMatch,"))
	assert.True(t, strings.HasPrefix(lines[3], "D3,Other,0.0000,Default,"))

	assert.True(t, strings.HasSuffix(lines[0], ",status"))
	assert.True(t, strings.HasSuffix(lines[1], ",Open"))
	assert.True(t, strings.HasSuffix(lines[2], ",Open"), "blank status is reported as Open")
	assert.True(t, strings.HasSuffix(lines[3], ",Closed"))

	resolutionLines := strings.Split(strings.TrimSpace(r1), "\n")
	require.Len(t, resolutionLines, 4)
	assert.True(t, strings.HasPrefix(resolutionLines[1], "D1,Auto-Refund,"))
	assert.Contains(t, resolutionLines[1], "T1")
}

func TestCSVTransactions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txns.csv")
	require.NoError(t, os.WriteFile(path, []byte(transactionsCSV), 0o600))

	txns, err := CSVTransactions{Path: path}.Transactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, txns, 3)

	_, err = CSVTransactions{Path: filepath.Join(t.TempDir(), "missing.csv")}.Transactions(context.Background())
	assert.Error(t, err)
}

func TestLoadDisputes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disputes.csv")
	require.NoError(t, os.WriteFile(path, []byte(disputesCSV), 0o600))

	disputes, err := LoadDisputes(path)
	require.NoError(t, err)
	assert.Len(t, disputes, 3)
}
