package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ponytojas/go-freezer-control/config"
	"github.com/ponytojas/go-freezer-control/internal/logging"
)

type options struct {
	configPath string
	simulate   bool
	logLevel   string

	cfg     *config.Config
	log     *slog.Logger
	logFile io.Closer
}

func newRootCmd() (*cobra.Command, *options) {
	opts := &options{}

	root := &cobra.Command{
		Use:   "freezer",
		Short: "Freezer compressor controller",
		Long: `freezer reads the freezer's temperature sensors and drives the
compressor relay, refusing stops that would short-cycle the compressor.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", ".", "directory containing config.yaml")
	root.PersistentFlags().BoolVar(&opts.simulate, "simulate", false, "use in-memory sensors and relay")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(opts),
		newTemperatureCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newStateCmd(opts),
	)
	return root, opts
}

func (o *options) load() error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.simulate {
		cfg.Compressor.Simulate = true
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	o.cfg = cfg
	o.log, o.logFile = logging.New(cfg.Log.Level, cfg.Log.File)
	slog.SetDefault(o.log)
	return nil
}

// close releases the log file, if any.
func (o *options) close() {
	if o.logFile == nil {
		return
	}
	if err := o.logFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
	o.logFile = nil
}

func main() {
	root, opts := newRootCmd()
	err := root.Execute()
	opts.close()
	if err != nil {
		os.Exit(1)
	}
}
