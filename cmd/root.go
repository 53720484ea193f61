package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var globalConfig Config

func init() {

	logLevel, ok := os.LookupEnv("LOG_LEVEL")

	if ok {
		// If the environment variable is set, parse it to set the log level
		level, err := log.ParseLevel(logLevel)
		if err == nil {
			log.SetLevel(level)
		} else {
			log.Warn("Invalid log level. Defaulting to Info level.")
			log.SetLevel(log.InfoLevel)
		}
	} else {
		// If the environment variable is not set, default to Info level
		log.SetLevel(log.InfoLevel)
	}

	rootCmd.PersistentFlags().StringVar(&globalConfig.CacheDir,
		"cache", defaultCacheDir(), "Directory holding the subject epoch files")
	rootCmd.PersistentFlags().StringVar(&globalConfig.Mirror,
		"mirror", "", "Base URL of a mirror serving subject_NN.h5 files (or EEGBENCH_MIRROR)")
	rootCmd.PersistentFlags().IntVar(&globalConfig.MirrorRetries,
		"mirrorRetries", 4, "Retries per download")
	rootCmd.PersistentFlags().DurationVar(&globalConfig.MirrorWait,
		"mirrorWait", time.Second, "Minimum wait between download attempts")
	rootCmd.PersistentFlags().StringVar(&globalConfig.Device,
		"device", "auto", "Device, one of [auto, cpu, accelerator] (or EEGBENCH_DEVICE)")
	rootCmd.PersistentFlags().StringVar(&globalConfig.LedgerFile,
		"ledger", "./results/runs.db", "sqlite ledger of all runs, empty to disable")

	initRun()
	initList()
	initFetch()
	initExport()
}

var rootCmd = &cobra.Command{
	Use:   "eegbench",
	Short: "EEG motor imagery benchmark",
	Long:  `Train and score EEG motor imagery decoders on public recording collections`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("running the root command, see help or -h for available commands\n")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(dir, "eegbench")
}
