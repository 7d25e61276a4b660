package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/ofx"
	"github.com/Veraticus/dispute-triage/internal/plaid"
	"github.com/Veraticus/dispute-triage/internal/service"
	"github.com/Veraticus/dispute-triage/internal/simplefin"
	"github.com/Veraticus/dispute-triage/internal/tabular"
)

const defaultLookback = 90 * 24 * time.Hour

// transactionSource picks where the transactions table comes from.
func transactionSource() (service.TransactionSource, error) {
	path := viper.GetString("classify.transactions")
	usePlaid := viper.GetBool("classify.plaid")
	useSimpleFIN := viper.GetBool("classify.simplefin")

	selected := 0
	for _, set := range []bool{path != "", usePlaid, useSimpleFIN} {
		if set {
			selected++
		}
	}

	switch {
	case selected > 1:
		return nil, common.NewUserError("use only one of --transactions, --plaid or --simplefin", nil)
	case usePlaid:
		return plaidSource()
	case useSimpleFIN:
		return simpleFINSource()
	case path == "":
		return nil, common.NewUserError("--transactions is required unless --plaid or --simplefin is set", nil)
	case ofx.IsOFXPath(path):
		return ofx.File{Path: path}, nil
	default:
		return tabular.CSVTransactions{Path: path}, nil
	}
}

// fetchRange reads --start and --end for the remote sources.
func fetchRange() (service.DateRange, error) {
	end, err := parseDateFlag("classify.end", time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		return service.DateRange{}, common.NewUserError("Invalid --end", err)
	}
	start, err := parseDateFlag("classify.start", end.Add(-defaultLookback))
	if err != nil {
		return service.DateRange{}, common.NewUserError("Invalid --start", err)
	}
	if start.After(end) {
		return service.DateRange{}, common.NewUserError("--start must not be after --end", nil)
	}
	return service.DateRange{Start: start, End: end}, nil
}

func plaidSource() (service.TransactionSource, error) {
	r, err := fetchRange()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadPlaidConfig()
	if err != nil {
		return nil, common.NewUserError("Plaid is not configured", err)
	}
	client, err := plaid.NewClient(*cfg)
	if err != nil {
		return nil, common.NewUserError("Could not create the Plaid client", err)
	}

	return plaid.Source{Fetcher: client, Range: r}, nil
}

// simpleFINSource claims simplefin.token on first use and reuses the saved
// access URL afterwards.
func simpleFINSource() (service.TransactionSource, error) {
	r, err := fetchRange()
	if err != nil {
		return nil, err
	}

	stateFile := config.ExpandPath(viper.GetString("simplefin.state_file"))
	if stateFile == "" {
		stateFile, err = simplefin.DefaultStateFile()
		if err != nil {
			return nil, fmt.Errorf("failed to locate SimpleFIN state file: %w", err)
		}
	}

	return lazySimpleFIN{token: viper.GetString("simplefin.token"), stateFile: stateFile, r: r}, nil
}

// lazySimpleFIN defers the token claim until the transactions are read,
// where a context is available.
type lazySimpleFIN struct {
	token     string
	stateFile string
	r         service.DateRange
}

func (l lazySimpleFIN) Transactions(ctx context.Context) ([]model.Transaction, error) {
	client, err := simplefin.NewClient(ctx, l.token, l.stateFile)
	if err != nil {
		return nil, err
	}
	return simplefin.Source{Fetcher: client, Range: l.r}.Transactions(ctx)
}
