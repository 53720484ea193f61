package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func initFetch() {
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the Zhou2016 subject files into the cache",
	Long: `Download every Zhou2016 subject file missing from the cache directory
from the configured mirror`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "fetch"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := newZhou(cfg).Fetch(ctx); err != nil {
			fatal(err)
		}
		infof("subject files available in %q", cfg.CacheDir)
	},
}
