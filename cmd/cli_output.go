package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[1;31m"
	colorWhite = "\033[0;37m"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, err.Error(), colorReset)
	os.Exit(1)
}

func infof(msg string, format ...interface{}) {
	formatted := fmt.Sprintf(msg, format...)
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorWhite, formatted, colorReset)
}

// writeResults prints the results in the configured format, to stdout
// unless an output file is set.
func writeResults(cfg *Config, r Results) error {
	var w io.Writer = os.Stdout
	if cfg.OutputFile != "" {
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return errors.Wrapf(err, "create %s", cfg.OutputFile)
		}
		defer f.Close()
		w = f
	}

	if err := formatResults(w, cfg, r); err != nil {
		return err
	}

	if cfg.OutputFile != "" {
		infof("results successfully written to %q", cfg.OutputFile)
	}
	return nil
}

func formatResults(w io.Writer, cfg *Config, r Results) error {
	var err error
	switch cfg.OutputFormat {
	case "json":
		_, err = r.WriteJSONTo(w)
	case "prometheus":
		err = writePrometheusText(w, cfg, r.Runs)
	default:
		_, err = r.WriteTextTo(w)
	}
	return err
}
