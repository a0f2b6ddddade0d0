package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ponytojas/go-freezer-control/internal/compressor"
	"github.com/ponytojas/go-freezer-control/internal/controller"
	"github.com/ponytojas/go-freezer-control/internal/models"
)

func newTemperatureCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "temperature",
		Short: "Poll the sensors once and print the average temperature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openController(opts)
			if err != nil {
				return err
			}
			state := ctrl.Poll(cmd.Context())
			out := cmd.OutOrStdout()
			for _, r := range state.Sensors {
				if r.Temperature.Valid {
					fmt.Fprintf(out, "%-12s %7.2f°C\n", r.Name, r.Temperature.Value)
				} else {
					fmt.Fprintf(out, "%-12s %8s\n", r.Name, "n/a")
				}
			}
			if !state.AverageTemperature.Valid {
				return fmt.Errorf("no sensor reported a valid temperature")
			}
			fmt.Fprintf(out, "%-12s %7.2f°C\n", "average", state.AverageTemperature.Value)
			if state.Humidity.Valid {
				fmt.Fprintf(out, "%-12s %7.2f%%\n", "humidity", state.Humidity.Value)
			}
			return nil
		},
	}
}

func newStartCmd(opts *options) *cobra.Command {
	var daemon string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Switch the compressor on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemon != "" {
				out, err := forward(cmd.Context(), daemon, "start")
				printOutcome(cmd, out)
				return err
			}
			ctrl, err := openController(opts)
			if err != nil {
				return err
			}
			out, err := ctrl.Start(cmd.Context())
			printOutcome(cmd, out)
			return err
		},
	}
	addDaemonFlag(cmd, &daemon)
	return cmd
}

func newStopCmd(opts *options) *cobra.Command {
	var daemon string
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Switch the compressor off if it has run long enough",
		Long: `stop switches the compressor off once it has run for the minimum run
time. A one-shot process cannot know when the compressor was switched on,
so it refuses to stop a running compressor unless --force is given. Use
--daemon to let a running controller apply its minimum run guard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemon != "" {
				out, err := forward(cmd.Context(), daemon, "stop")
				printOutcome(cmd, out)
				return err
			}
			if !force {
				opts.cfg.Compressor.RefuseUnknownStart = true
			}
			ctrl, err := openController(opts)
			if err != nil {
				return err
			}
			return stopOnce(cmd, ctrl)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "stop even though the activation time is unknown")
	addDaemonFlag(cmd, &daemon)
	cmd.MarkFlagsMutuallyExclusive("force", "daemon")
	return cmd
}

func stopOnce(cmd *cobra.Command, ctrl *controller.Controller) error {
	out, err := ctrl.Stop(cmd.Context())
	printOutcome(cmd, out)
	if err != nil {
		return err
	}
	if out.Kind == models.Refused && ctrl.Actuator().OnSince.IsZero() {
		return errUnknownActivation
	}
	return nil
}

func newStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print sensor and compressor state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openController(opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Aggregate models.AggregateState `json:"aggregate"`
				Actuator  models.ActuatorState  `json:"actuator"`
			}{ctrl.Aggregate(), ctrl.Actuator()})
		},
	}
}

func openController(opts *options) (*controller.Controller, error) {
	ctrl, err := controller.NewFromConfig(opts.cfg, opts.log)
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}
	return ctrl, nil
}

func printOutcome(cmd *cobra.Command, out models.Outcome) {
	w := cmd.OutOrStdout()
	switch out.Kind {
	case "":
		// the request never produced an outcome
	case models.Refused:
		fmt.Fprintf(w, "%s: retry in %.0f seconds\n", out.Kind, out.WaitSeconds())
	default:
		fmt.Fprintln(w, out.Kind)
	}
}

// releaseGPIO unmaps GPIO memory when a real relay was used.
func releaseGPIO(opts *options) {
	if opts.cfg == nil || opts.cfg.Compressor.Simulate {
		return
	}
	if err := compressor.CloseGPIO(); err != nil {
		opts.log.Warn("failed to release gpio", "err", err)
	}
}
