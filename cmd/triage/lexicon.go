package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/dispute-triage/internal/cli"
	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
)

func lexiconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Inspect the classification lexicon",
		Long: `Inspect the lexicon: the categories, keywords, exemplars, thresholds and
category-to-action mapping used by classify.

The lexicon comes from --lexicon, then the "lexicon" key of the config file,
then the built-in default.`,
	}

	var path string
	cmd.PersistentFlags().StringVar(&path, "lexicon", "", "lexicon YAML file")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective lexicon as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lex, err := config.LoadLexicon(path)
			if err != nil {
				return common.NewUserError("Could not load the lexicon", err)
			}
			out, err := lex.YAML()
			if err != nil {
				return fmt.Errorf("failed to encode lexicon: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the lexicon for configuration errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lex, err := config.LoadLexicon(path)
			if err != nil {
				return common.NewUserError("Could not load the lexicon", err)
			}
			if err := lex.Validate(); err != nil {
				return common.NewUserError("Lexicon is invalid", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Lexicon is valid: %d categories", len(lex.Categories))))
			return nil
		},
	})

	return cmd
}
