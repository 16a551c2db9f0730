package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/cache"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

var pruneDir string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the classification cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired and corrupt entries from the disk cache",
	Args:  cobra.NoArgs,
	RunE:  runCachePrune,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePruneCmd)

	cachePruneCmd.Flags().StringVar(&pruneDir, "cache-dir", "", "cache directory (default from config)")
}

func runCachePrune(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if pruneDir != "" {
		cfg.Cache.Dir = pruneDir
	}
	if cfg.Cache.Backend == "redis" {
		return fmt.Errorf("%w: redis entries expire on their own, nothing to prune", model.ErrInvalidInput)
	}

	store, err := cache.NewDiskStore(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	removed, err := store.Prune(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries from %s\n", removed, store.Dir())
	return nil
}
