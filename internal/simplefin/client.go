// Package simplefin reads the transactions table from a SimpleFIN bridge.
package simplefin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// Transaction statuses derived from SimpleFIN's pending flag.
const (
	StatusPending = "PENDING"
	StatusPosted  = "POSTED"
)

// API response types.
type accountSet struct {
	Errors   []string  `json:"errors"`
	Accounts []account `json:"accounts"`
}

type account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Currency     string        `json:"currency"`
	Transactions []transaction `json:"transactions"`
}

type transaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Posted      int64  `json:"posted"`
	Pending     bool   `json:"pending"`
}

// Client fetches transactions through a SimpleFIN access URL.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	accessURL  string
	retryOpts  service.RetryOptions
}

// NewClient claims token (or reuses the access URL saved in stateFile) and
// returns a client for it.
func NewClient(ctx context.Context, token, stateFile string) (*Client, error) {
	auth, err := LoadOrClaimAuth(ctx, token, stateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load/claim auth: %w", err)
	}
	return NewClientWithAccessURL(auth.AccessURL), nil
}

// NewClientWithAccessURL creates a client for an already claimed access URL.
func NewClientWithAccessURL(accessURL string) *Client {
	return &Client{
		accessURL:  strings.TrimSuffix(accessURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("component", "simplefin"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// GetTransactions fetches transactions posted between startDate and endDate
// inclusive. Pending transactions have no posting time and are always kept.
func (c *Client) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, error) {
	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	u, err := url.Parse(c.accessURL + "/accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("start-date", strconv.FormatInt(startDate.Unix(), 10))
	// end-date is exclusive
	q.Set("end-date", strconv.FormatInt(endDate.AddDate(0, 0, 1).Unix(), 10))
	q.Set("pending", "1")
	u.RawQuery = q.Encode()

	c.logger.Debug("Requesting SimpleFIN transactions",
		"start_date", startDate.Format("2006-01-02"),
		"end_date", endDate.Format("2006-01-02"))

	var set accountSet
	err = common.WithRetry(ctx, func() error {
		return c.fetch(ctx, u.String(), &set)
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}
	for _, msg := range set.Errors {
		c.logger.Warn("SimpleFIN reported a problem", "message", msg)
	}

	lastDay := endDate.AddDate(0, 0, 1)
	var transactions []model.Transaction
	for _, acct := range set.Accounts {
		for _, tx := range acct.Transactions {
			converted, err := toTransaction(acct.ID, tx)
			if err != nil {
				return nil, err
			}
			if !converted.Timestamp.IsZero() &&
				(converted.Timestamp.Before(startDate) || !converted.Timestamp.Before(lastDay)) {
				continue
			}
			transactions = append(transactions, converted)
		}
	}

	c.logger.Info("Fetched SimpleFIN transactions", "accounts", len(set.Accounts), "count", len(transactions))
	return transactions, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string, out *accountSet) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err), Retryable: false}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &common.RetryableError{Err: fmt.Errorf("failed to decode response: %w", err), Retryable: false}
	}
	return nil
}

// statusError retries throttling and server failures. Anything else, such
// as 403 for a revoked access URL, fails immediately.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err := fmt.Errorf("SimpleFIN API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &common.RetryableError{Err: err, Retryable: true}
	default:
		return &common.RetryableError{Err: err, Retryable: false}
	}
}

// toTransaction maps a SimpleFIN transaction. IDs are only unique within an
// account, so the account ID is prefixed; it also stands in for the customer.
func toTransaction(accountID string, tx transaction) (model.Transaction, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(tx.Amount))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to parse amount %q of transaction %s: %w", tx.Amount, tx.ID, err)
	}

	status := StatusPosted
	var ts time.Time
	if tx.Pending || tx.Posted == 0 {
		status = StatusPending
	} else {
		ts = time.Unix(tx.Posted, 0).UTC()
	}

	merchant := tx.Payee
	if strings.TrimSpace(merchant) == "" {
		merchant = tx.Description
	}

	return model.Transaction{
		ID:         accountID + "_" + tx.ID,
		Amount:     amount.Abs(),
		Merchant:   normalizeMerchant(merchant),
		CustomerID: accountID,
		Status:     status,
		Timestamp:  ts,
	}, nil
}

// normalizeMerchant trims corporate suffixes and title-cases the name.
func normalizeMerchant(raw string) string {
	merchant := strings.Join(strings.Fields(raw), " ")
	for _, suffix := range []string{" LLC", " INC", " CORP"} {
		if strings.HasSuffix(strings.ToUpper(merchant), suffix) {
			merchant = merchant[:len(merchant)-len(suffix)]
		}
	}

	words := strings.Fields(strings.ToLower(merchant))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// TransactionFetcher fetches transactions for a date range.
type TransactionFetcher interface {
	GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, error)
}

var _ TransactionFetcher = (*Client)(nil)

// Source adapts a fetcher and date range to service.TransactionSource.
type Source struct {
	Fetcher TransactionFetcher
	Range   service.DateRange
}

var _ service.TransactionSource = Source{}

// Transactions implements service.TransactionSource.
func (s Source) Transactions(ctx context.Context) ([]model.Transaction, error) {
	return s.Fetcher.GetTransactions(ctx, s.Range.Start, s.Range.End)
}
