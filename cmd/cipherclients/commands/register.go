package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherclients/internal/domain"
)

func registerCmd() *cobra.Command {
	var (
		name  string
		count int
	)
	cmd := &cobra.Command{
		Use:   "register <device-id>",
		Short: "Create the self device and publish its pre-key bundle to the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			ctx := cmd.Context()

			self, err := appCtx.Bootstrap(ctx, name, domain.DeviceID(args[0]))
			if err != nil {
				return err
			}
			bundle, err := appCtx.PreKeys.Replenish(ctx, passphrase, self, count)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s with %d one-time pre-keys\n",
				self.RemoteID(), len(bundle.OneTimePreKeys))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "me", "display name of the self user")
	cmd.Flags().IntVar(&count, "prekeys", 10, "number of one-time pre-keys to publish")
	return cmd
}
