package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eegbench/eegbench/internal/benchmark"
	"github.com/eegbench/eegbench/internal/device"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var listRuns bool

func initList() {
	rootCmd.AddCommand(listCmd)
	listCmd.PersistentFlags().BoolVar(&listRuns,
		"runs", false, "List the most recent runs from the ledger instead")
	listCmd.PersistentFlags().IntVarP(&globalConfig.Limit,
		"limit", "n", 20, "Maximum number of runs to list")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets, solver variants or past runs",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "list"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		if listRuns {
			if err := listLedger(cmd.Context(), os.Stdout, cfg); err != nil {
				fatal(err)
			}
			return
		}

		reg, err := newRegistry(cfg, device.CPUIDProbe{})
		if err != nil {
			fatal(err)
		}
		if err := listRegistry(os.Stdout, reg); err != nil {
			fatal(err)
		}
	},
}

func listRegistry(w io.Writer, reg *benchmark.Registry) error {
	b := strings.Builder{}
	b.WriteString("Datasets:\n")
	for _, name := range reg.Datasets() {
		b.WriteString(fmt.Sprintf("  %s\n", name))
	}
	b.WriteString("Solvers:\n")
	for _, name := range reg.Solvers() {
		variants, err := reg.Variants(name)
		if err != nil {
			return err
		}
		for _, v := range variants {
			b.WriteString(fmt.Sprintf("  %s\n", v))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func listLedger(ctx context.Context, w io.Writer, cfg Config) error {
	if cfg.LedgerFile == "" {
		return errors.New("no ledger configured")
	}
	ledger, err := benchmark.OpenLedger(cfg.LedgerFile)
	if err != nil {
		return err
	}
	defer ledger.Close()

	runs, err := ledger.List(ctx, cfg.Limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if _, err := fmt.Fprintf(w, "%s  %s  %-52s  %-11s  train %.4f  test %.4f  %s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Dataset, r.Variant, r.Device,
			r.TrainAccuracy, r.TestAccuracy, r.RunDuration); err != nil {
			return err
		}
	}
	return nil
}
