package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/service"
	"github.com/Veraticus/dispute-triage/internal/sheets"
	"github.com/Veraticus/dispute-triage/internal/tabular"
)

const disputesCSV = `dispute_id,txn_id,description,amount,status,customer_id,created_at
D1,T1,duplicate charge on my card,25.00,Open,C1,2024-03-02 10:00:00
D2,T2,I want a refund,1200.50,Open,C2,
D3,T404,,0,Closed,,2024-03-02
`

const transactionsCSV = `transaction_id,amount,merchant,customer_id,status,timestamp,is_duplicate
T1,25.00,Acme Store,C1,SUCCESS,2024-03-01T09:00:00Z,true
T2,1200.50,Bookshop,C2,FAILED,2024-03-01 11:30:00,0
`

const statementQFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>C1
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.00
<FITID>T1
<NAME>ACME STORE
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120100[0:GMT]
<TRNAMT>-25.00
<FITID>T1B
<NAME>ACME STORE
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-50.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassify_CSV(t *testing.T) {
	dir := t.TempDir()
	disputes := writeFile(t, dir, "disputes.csv", disputesCSV)
	txns := writeFile(t, dir, "transactions.csv", transactionsCSV)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "classify", "--disputes", disputes, "--transactions", txns,
		"--out", outDir, "--workers", "2", "--no-progress", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Triage Summary")
	assert.Contains(t, out, filepath.Join(outDir, tabular.ClassificationsFile))

	classifications, err := os.ReadFile(filepath.Join(outDir, tabular.ClassificationsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(classifications)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "D1,Duplicate Charge,1.0000,DataRule,"))
	assert.True(t, strings.HasPrefix(lines[2], "D2,Refund Pending,1.0000,FuzzyMatch,"))
	assert.True(t, strings.HasPrefix(lines[3], "D3,Other,0.0000,Default,"))
	assert.True(t, strings.HasSuffix(lines[3], ",Closed"))

	resolutions, err := os.ReadFile(filepath.Join(outDir, tabular.ResolutionsFile))
	require.NoError(t, err)
	assert.Contains(t, string(resolutions), "D1,Auto-Refund,")
}

func TestClassify_OFXStatement(t *testing.T) {
	dir := t.TempDir()
	disputes := writeFile(t, dir, "disputes.csv", "dispute_id,transaction_id,description\nD1,T1,\n")
	statement := writeFile(t, dir, "card.qfx", statementQFX)

	_, err := execute(t, "classify", "-d", disputes, "-t", statement, "-o", dir, "--no-progress", "--log-level", "error")
	require.NoError(t, err)

	classifications, err := os.ReadFile(filepath.Join(dir, tabular.ClassificationsFile))
	require.NoError(t, err)
	assert.Contains(t, string(classifications), "D1,Duplicate Charge,1.0000,DataRule,")
}

func TestClassify_SheetsExport(t *testing.T) {
	mock := sheets.NewMockWriter()
	original := newSheetsWriter
	newSheetsWriter = func(*cobra.Command) (service.ReportWriter, error) { return mock, nil }
	t.Cleanup(func() { newSheetsWriter = original })

	dir := t.TempDir()
	disputes := writeFile(t, dir, "disputes.csv", disputesCSV)
	txns := writeFile(t, dir, "transactions.csv", transactionsCSV)

	out, err := execute(t, "classify", "-d", disputes, "-t", txns, "-o", dir, "--sheets", "--no-progress", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Google Sheets")

	require.Equal(t, 1, mock.WriteCallCount)
	assert.Len(t, mock.LastReport.Classifications, 3)
	assert.Len(t, mock.LastReport.Resolutions, 3)

	mock.Reset()
	mock.SetWriteError(errors.New("quota exceeded"))
	_, err = execute(t, "classify", "-d", disputes, "-t", txns, "-o", dir, "--sheets", "--no-progress", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Google Sheets export failed")
}

func TestClassify_UserErrors(t *testing.T) {
	dir := t.TempDir()
	disputes := writeFile(t, dir, "disputes.csv", disputesCSV)
	txns := writeFile(t, dir, "transactions.csv", transactionsCSV)
	badLexicon := writeFile(t, dir, "lexicon.yaml", "categories:\n  - name: Fraud\n    action: Escalate\n")

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{name: "no disputes", args: []string{"classify"}, wantMsg: "--disputes is required"},
		{name: "no transactions", args: []string{"classify", "-d", disputes}, wantMsg: "--transactions is required"},
		{name: "both sources", args: []string{"classify", "-d", disputes, "-t", txns, "--plaid"}, wantMsg: "use only one of"},
		{name: "simplefin and plaid", args: []string{"classify", "-d", disputes, "--plaid", "--simplefin"}, wantMsg: "use only one of"},
		{name: "plaid unconfigured", args: []string{"classify", "-d", disputes, "--plaid"}, wantMsg: "Plaid is not configured"},
		{name: "bad plaid dates", args: []string{"classify", "-d", disputes, "--plaid", "--start", "2024-02-01", "--end", "2024-01-01"}, wantMsg: "--start must not be after --end"},
		{name: "missing disputes file", args: []string{"classify", "-d", filepath.Join(dir, "nope.csv"), "-t", txns}, wantMsg: "Could not read the disputes table"},
		{name: "invalid lexicon", args: []string{"classify", "-d", disputes, "-t", txns, "--lexicon", badLexicon}, wantMsg: "Invalid classification configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append(tt.args, "--no-progress", "--log-level", "error")...)
			require.Error(t, err)
			var userErr *common.UserError
			assert.True(t, errors.As(err, &userErr), "error should be a UserError: %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClassify_SimpleFIN(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		_, _ = w.Write([]byte(`{"accounts":[{"id":"C1","transactions":[
			{"id":"T1","posted":1709283600,"amount":"-25.00","payee":"Acme Store"},
			{"id":"T2","posted":1709283660,"amount":"-25.00","payee":"Acme Store"}]}]}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	stateFile := writeFile(t, dir, "simplefin.json", `{"access_url":"`+server.URL+`"}`)
	t.Setenv("TRIAGE_SIMPLEFIN_STATE_FILE", stateFile)
	disputes := writeFile(t, dir, "disputes.csv", "dispute_id,transaction_id,description\nD1,C1_T1,\n")

	_, err := execute(t, "classify", "-d", disputes, "--simplefin", "--start", "2024-03-01", "--end", "2024-03-31",
		"-o", dir, "--no-progress", "--log-level", "error")
	require.NoError(t, err)

	classifications, err := os.ReadFile(filepath.Join(dir, tabular.ClassificationsFile))
	require.NoError(t, err)
	assert.Contains(t, string(classifications), "D1,Duplicate Charge,1.0000,DataRule,")
}

func TestLexiconCommands(t *testing.T) {
	out, err := execute(t, "lexicon", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "default_category: Other")
	assert.Contains(t, out, "Duplicate Charge")

	out, err = execute(t, "lexicon", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Lexicon is valid: 7 categories")

	bad := writeFile(t, t.TempDir(), "lexicon.yaml", "categories:\n  - name: Fraud\n    action: Bogus\n")
	_, err = execute(t, "lexicon", "validate", "--lexicon", bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestCacheCommands(t *testing.T) {
	t.Setenv("TRIAGE_CACHE_PATH", filepath.Join(t.TempDir(), "cache", "embeddings.db"))

	out, err := execute(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "0 cached vectors")

	out, err = execute(t, "cache", "prune", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 cached vectors")

	_, err = execute(t, "cache", "prune", "--older-than", "0s")
	require.Error(t, err)
}

func TestSheetsAuth_RequiresClient(t *testing.T) {
	_, err := execute(t, "sheets", "auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheets.client_id")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "triage dev\n", out)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "logging:\n  level: verbose\n")

	_, err := execute(t, "--config", cfg, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = execute(t, "--config", filepath.Join(dir, "missing.yaml"), "version")
	assert.Error(t, err)
}

func TestFormatError(t *testing.T) {
	msg := formatError(common.NewUserError("Could not read the disputes table", errors.New("no such file")))
	assert.Contains(t, msg, "Could not read the disputes table")
	assert.Contains(t, msg, "no such file")
}
