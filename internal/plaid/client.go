// Package plaid reads the transactions table from the Plaid API.
package plaid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// Transaction statuses assigned from Plaid's pending flag.
const (
	StatusPending = "PENDING"
	StatusPosted  = "POSTED"
)

const dateLayout = "2006-01-02"

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	AccessToken string
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	switch {
	case c.ClientID == "":
		return common.NewConfigError("plaid.client_id", "plaid client ID is required")
	case c.Secret == "":
		return common.NewConfigError("plaid.secret", "plaid secret is required")
	case c.AccessToken == "":
		return common.NewConfigError("plaid.access_token", "plaid access token is required")
	case c.Environment != "sandbox" && c.Environment != "production":
		return common.NewConfigError("plaid.environment", "must be sandbox or production")
	}
	return nil
}

// Client fetches transactions for one linked item.
type Client struct {
	client      *plaid.APIClient
	logger      *slog.Logger
	retryOpts   service.RetryOptions
	accessToken string
}

// NewClient creates a new Plaid client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	return &Client{
		client:      plaid.NewAPIClient(configuration),
		accessToken: cfg.AccessToken,
		logger:      slog.Default().With("component", "plaid"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// GetTransactions fetches transactions within the date range, following pagination.
func (c *Client) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, error) {
	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	c.logger.Info("Fetching transactions from Plaid",
		"start_date", startDate.Format(dateLayout),
		"end_date", endDate.Format(dateLayout))

	var all []plaid.Transaction
	offset := int32(0)
	const pageSize = int32(500) // Plaid's max page size

	for {
		var page []plaid.Transaction
		var total int32

		err := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(c.accessToken, startDate.Format(dateLayout), endDate.Format(dateLayout))
			request.SetOptions(plaid.TransactionsGetRequestOptions{
				Count:  plaid.PtrInt32(pageSize),
				Offset: plaid.PtrInt32(offset),
			})

			resp, _, err := c.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				return classifyError(err, "failed to fetch transactions")
			}

			page = resp.GetTransactions()
			total = resp.GetTotalTransactions()
			return nil
		}, c.retryOpts)
		if err != nil {
			return nil, err
		}

		c.logger.Debug("Fetched transaction page", "count", len(page), "offset", offset, "total", total)
		all = append(all, page...)

		if len(page) < int(pageSize) || int32(len(all)) >= total {
			break
		}
		offset += pageSize
	}

	transactions := make([]model.Transaction, 0, len(all))
	for _, pt := range all {
		transactions = append(transactions, toTransaction(fieldsOf(pt)))
	}

	c.logger.Info("Fetched all transactions", "count", len(transactions))
	return transactions, nil
}

// classifyError marks rate limits and server failures as retryable.
func classifyError(err error, msg string) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}

	wrapped := fmt.Errorf("plaid API error: %s - %s", plaidErr.ErrorCode, plaidErr.ErrorMessage)
	switch {
	case plaidErr.ErrorCode == "RATE_LIMIT_EXCEEDED":
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, wrapped), Retryable: true}
	case string(plaidErr.ErrorType) == "API_ERROR":
		return &common.RetryableError{Err: wrapped, Retryable: true}
	default:
		return &common.RetryableError{Err: wrapped, Retryable: false}
	}
}

// fields is the subset of a Plaid transaction the dispute tables use.
type fields struct {
	datetime     time.Time
	id           string
	name         string
	merchantName string
	accountID    string
	amount       float64
	pending      bool
}

func fieldsOf(pt plaid.Transaction) fields {
	return fields{
		id:           pt.GetTransactionId(),
		name:         pt.GetName(),
		merchantName: pt.GetMerchantName(),
		accountID:    pt.GetAccountId(),
		amount:       pt.GetAmount(),
		pending:      pt.GetPending(),
		datetime:     pt.GetDatetime(),
	}
}

// toTransaction maps Plaid fields to the transactions table. The account ID
// stands in for the customer. A transaction without a posting time keeps a
// zero timestamp: a date alone is too coarse to derive repeated charges.
func toTransaction(f fields) model.Transaction {
	merchant := f.merchantName
	if merchant == "" {
		merchant = f.name
	}

	status := StatusPosted
	if f.pending {
		status = StatusPending
	}

	// Plaid reports debits as positive and credits as negative.
	amount := decimal.NewFromFloat(f.amount).Round(2).Abs()

	return model.Transaction{
		ID:         f.id,
		Timestamp:  f.datetime,
		Merchant:   cleanMerchantName(merchant),
		CustomerID: f.accountID,
		Status:     status,
		Amount:     amount,
	}
}

// cleanMerchantName standardizes merchant names by removing common suffixes and normalizing format.
func cleanMerchantName(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for i, word := range words {
		runes := []rune(word)
		for j := range runes {
			if j == 0 || !isLetter(runes[j-1]) {
				runes[j] = toUpper(runes[j])
			}
		}
		words[i] = string(runes)
	}

	// Trailing long digit runs are processor reference numbers.
	if len(words) > 1 {
		last := words[len(words)-1]
		if len(last) > 5 && isAllDigits(last) {
			words = words[:len(words)-1]
		}
	}
	name = strings.Join(words, " ")

	suffixes := []string{" Llc", " Inc", " Corp", " Corporation", " Company", " Co", " Ltd", " Limited"}
	for changed := true; changed; {
		changed = false
		for _, suffix := range suffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				changed = true
			}
		}
	}

	return strings.TrimSpace(name)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}

var _ TransactionFetcher = (*Client)(nil)
