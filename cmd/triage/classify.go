package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/dispute-triage/internal/cli"
	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/engine"
	"github.com/Veraticus/dispute-triage/internal/service"
	"github.com/Veraticus/dispute-triage/internal/sheets"
	"github.com/Veraticus/dispute-triage/internal/tabular"
)

// newSheetsWriter is replaced in tests.
var newSheetsWriter = func(cmd *cobra.Command) (service.ReportWriter, error) {
	cfg, err := config.LoadSheetsConfig()
	if err != nil {
		return nil, err
	}
	return sheets.NewWriter(cmd.Context(), *cfg)
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify disputes and suggest resolutions",
		Long: `Classify every dispute in the disputes table and recommend an action.

Transactions come from a CSV file, an OFX/QFX statement, Plaid or SimpleFIN. Results are
written to classifications.csv and resolutions.csv in the output directory.

Examples:
  triage classify --disputes disputes.csv --transactions transactions.csv
  triage classify --disputes disputes.csv --transactions statement.qfx --out results
  triage classify --disputes disputes.csv --plaid --start 2024-01-01 --end 2024-03-31
  triage classify --disputes disputes.csv --simplefin --start 2024-01-01
  triage classify --disputes disputes.csv --transactions t.csv --sheets`,
		RunE: runClassify,
	}

	cmd.Flags().StringP("disputes", "d", "", "disputes CSV file (required)")
	cmd.Flags().StringP("transactions", "t", "", "transactions CSV, OFX or QFX file")
	cmd.Flags().StringP("out", "o", ".", "directory for the output tables")
	cmd.Flags().IntP("workers", "w", 0, "parallel workers (0 = number of CPUs)")
	cmd.Flags().String("lexicon", "", "lexicon YAML file (default: lexicon from config, then built-in)")
	cmd.Flags().Bool("sheets", false, "also export the tables to Google Sheets")
	cmd.Flags().Bool("plaid", false, "fetch transactions from Plaid instead of a file")
	cmd.Flags().Bool("simplefin", false, "fetch transactions from a SimpleFIN bridge instead of a file")
	cmd.Flags().String("start", "", "Plaid/SimpleFIN start date (YYYY-MM-DD, default: 90 days before end)")
	cmd.Flags().String("end", "", "Plaid/SimpleFIN end date (YYYY-MM-DD, default: today)")
	cmd.Flags().Bool("no-progress", false, "hide the progress bar")

	_ = viper.BindPFlag("classify.disputes", cmd.Flags().Lookup("disputes"))
	_ = viper.BindPFlag("classify.transactions", cmd.Flags().Lookup("transactions"))
	_ = viper.BindPFlag("classify.out", cmd.Flags().Lookup("out"))
	_ = viper.BindPFlag("classify.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("classify.lexicon", cmd.Flags().Lookup("lexicon"))
	_ = viper.BindPFlag("classify.sheets", cmd.Flags().Lookup("sheets"))
	_ = viper.BindPFlag("classify.plaid", cmd.Flags().Lookup("plaid"))
	_ = viper.BindPFlag("classify.simplefin", cmd.Flags().Lookup("simplefin"))
	_ = viper.BindPFlag("classify.start", cmd.Flags().Lookup("start"))
	_ = viper.BindPFlag("classify.end", cmd.Flags().Lookup("end"))
	_ = viper.BindPFlag("classify.no_progress", cmd.Flags().Lookup("no-progress"))

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	disputesPath := viper.GetString("classify.disputes")
	if disputesPath == "" {
		return common.NewUserError("--disputes is required", nil)
	}

	lex, err := config.LoadLexicon(viper.GetString("classify.lexicon"))
	if err != nil {
		return common.NewUserError("Could not load the lexicon", err)
	}

	embedder, closeEmbedder, err := newEmbedder(ctx, lex)
	if err != nil {
		return common.NewUserError("Could not set up the embedding model", err)
	}
	defer closeEmbedder()

	opts := engine.DefaultOptions()
	if workers := viper.GetInt("classify.workers"); workers > 0 {
		opts.Workers = workers
	}

	disputes, err := tabular.LoadDisputes(disputesPath)
	if err != nil {
		return common.NewUserError("Could not read the disputes table", err)
	}

	source, err := transactionSource()
	if err != nil {
		return err
	}
	txns, err := source.Transactions(ctx)
	if err != nil {
		return common.NewUserError("Could not read the transactions table", err)
	}

	var progress *cli.Progress
	if !viper.GetBool("classify.no_progress") && len(disputes) > 0 {
		progress = cli.NewProgress(cmd.ErrOrStderr(), len(disputes))
		opts.Progress = progress.Func()
	}

	eng, err := engine.New(ctx, lex, embedder, opts)
	if err != nil {
		return common.NewUserError("Invalid classification configuration", err)
	}

	slog.Info("Classifying disputes",
		"disputes", len(disputes),
		"transactions", len(txns),
		"workers", eng.Workers())

	report, err := eng.Run(ctx, disputes, txns)
	if err != nil {
		return common.NewUserError("Classification did not finish", err)
	}

	dir := tabular.DirWriter{Dir: viper.GetString("classify.out")}
	if err := dir.Write(ctx, report); err != nil {
		return common.NewUserError("Could not write the output tables", err)
	}
	classificationsPath, resolutionsPath := dir.Paths()
	outputs := []string{classificationsPath, resolutionsPath}

	if viper.GetBool("classify.sheets") {
		writer, err := newSheetsWriter(cmd)
		if err != nil {
			return common.NewUserError("Could not connect to Google Sheets", err)
		}
		if err := writer.Write(ctx, report); err != nil {
			return common.NewUserError("Google Sheets export failed", err)
		}
		outputs = append(outputs, "Google Sheets")
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderSummary(report, outputs))
	return nil
}

func parseDateFlag(key string, fallback time.Time) (time.Time, error) {
	value := viper.GetString(key)
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q (use YYYY-MM-DD): %w", key, value, err)
	}
	return t, nil
}
