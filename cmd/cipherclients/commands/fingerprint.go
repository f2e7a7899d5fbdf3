package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [device-id]",
		Short: "Print the identity fingerprint, or the cached fingerprint of a device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fp, err := appCtx.Identity.FingerprintIdentity(passphrase)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", fp)
				return nil
			}

			devices, err := findDevices(args)
			if err != nil {
				return err
			}
			d := devices[0]
			if _, err := appCtx.Sessions.RefreshFingerprint(cmd.Context(), d); err != nil {
				return err
			}
			fp := d.Fingerprint()
			if fp == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no session\n", d.RemoteID())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", d.RemoteID(), fp)
			return nil
		},
	}
}
