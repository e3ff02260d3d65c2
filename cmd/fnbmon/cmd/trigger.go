package cmd

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fnb-tools/fnbmon/internal/meter/usb"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <protocol> <voltage>",
	Short: "Request a fast-charge protocol at a target voltage",
	Long: `Asks the charger to switch to a fast-charge protocol. Protocols:
pd, qc, afc, fcp, scp, vooc at whole-volt targets, or qc3 with a
fractional voltage (3.6-12.0V) for fine adjustment.

Trigger commands are only available over USB.

Examples:
  fnbmon trigger pd 9
  fnbmon trigger qc3 5.8`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		protocol := args[0]
		transport := usb.New(usb.WithLogger(logger))
		if err := transport.Connect(ctx); err != nil {
			return err
		}
		defer transport.Close()

		if protocol == "qc3" {
			voltage, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid voltage %q", args[1])
			}
			if err := transport.AdjustQC3(voltage); err != nil {
				return err
			}
			fmt.Printf("QC 3.0 output set to %.2fV\n", voltage)
			return nil
		}

		voltage, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid voltage %q", args[1])
		}
		if err := transport.Trigger(protocol, voltage); err != nil {
			return err
		}
		fmt.Printf("Requested %s at %dV\n", protocol, voltage)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
