package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func trustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust <device-id>...",
		Short: "Mark devices as verified by the self device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := findDevices(args)
			if err != nil {
				return err
			}
			if _, err := appCtx.SelfDevice(); err != nil {
				return err
			}
			appCtx.Trust.Trust(cmd.Context(), devices)
			if err := appCtx.Objects.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trusted %d device(s)\n", len(devices))
			return nil
		},
	}
}

func ignoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <device-id>...",
		Short: "Withdraw verification of devices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := findDevices(args)
			if err != nil {
				return err
			}
			if _, err := appCtx.SelfDevice(); err != nil {
				return err
			}
			appCtx.Trust.Ignore(cmd.Context(), devices)
			if err := appCtx.Objects.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ignored %d device(s)\n", len(devices))
			return nil
		},
	}
}
