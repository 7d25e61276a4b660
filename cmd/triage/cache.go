package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/dispute-triage/internal/cli"
	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/storage"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent embedding cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show how many vectors are cached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			model, _ := cmd.Flags().GetString("model")
			return withCache(cmd, func(store *storage.SQLiteStorage) error {
				count, err := store.CountEmbeddings(cmd.Context(), model)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(
					fmt.Sprintf("%d cached vectors in %s", count, store.Path())))
				return nil
			})
		},
	}
	stats.Flags().String("model", "", "only count vectors for this embedding model")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached vectors not used recently",
		RunE: func(cmd *cobra.Command, _ []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan <= 0 {
				return common.NewUserError("--older-than must be positive", nil)
			}
			return withCache(cmd, func(store *storage.SQLiteStorage) error {
				removed, err := store.PruneEmbeddings(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
					fmt.Sprintf("Removed %d cached vectors", removed)))
				return nil
			})
		},
	}
	prune.Flags().Duration("older-than", 30*24*time.Hour, "remove vectors last used before this long ago")

	cmd.AddCommand(stats, prune)
	return cmd
}

func withCache(cmd *cobra.Command, fn func(*storage.SQLiteStorage) error) error {
	store, err := storage.Open(cmd.Context(), cachePath())
	if err != nil {
		return common.NewUserError("Could not open the embedding cache", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close embedding cache", "error", closeErr)
		}
	}()
	return fn(store)
}
