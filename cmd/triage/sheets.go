package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/dispute-triage/internal/cli"
	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/sheets"
)

const defaultTokenFile = "$HOME/.config/triage/sheets-token.json"

func sheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Google Sheets export settings",
	}

	auth := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Sheets export with your Google account",
		Long: `Run the OAuth2 consent flow and save the resulting token.

Requires sheets.client_id and sheets.client_secret. Set sheets.token_file to
the saved path so classify --sheets picks the token up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokenFile, _ := cmd.Flags().GetString("token-file")
			oauthCfg := sheets.OAuth2Config{
				ClientID:     viper.GetString("sheets.client_id"),
				ClientSecret: viper.GetString("sheets.client_secret"),
				TokenFile:    config.ExpandPath(tokenFile),
			}
			if oauthCfg.ClientID == "" || oauthCfg.ClientSecret == "" {
				return common.NewUserError("sheets.client_id and sheets.client_secret are required", nil)
			}

			out := cmd.OutOrStdout()
			_, err := sheets.GetOrCreateToken(cmd.Context(), oauthCfg, func(url string) {
				fmt.Fprintln(out, cli.FormatInfo("Open this URL to authorize Google Sheets access:"))
				fmt.Fprintln(out, url)
			})
			if err != nil {
				return common.NewUserError("Google authorization failed", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess("Token saved to "+oauthCfg.TokenFile))
			return nil
		},
	}
	auth.Flags().String("token-file", defaultTokenFile, "where to save the OAuth2 token")

	cmd.AddCommand(auth)
	return cmd
}
