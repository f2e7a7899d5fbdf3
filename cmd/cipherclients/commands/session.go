package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cipherclients/internal/domain"
	"cipherclients/internal/model"
	"cipherclients/internal/syncctx"
)

func establishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "establish <device-id>",
		Short: "Fetch a pre-key bundle from the relay and start a session with a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			self, err := appCtx.SelfDevice()
			if err != nil {
				return err
			}
			devices, err := findDevices(args)
			if err != nil {
				return err
			}
			d := devices[0]
			ctx := cmd.Context()

			bundle, err := appCtx.Relay.FetchPreKeyBundle(ctx, d.RemoteID())
			if err != nil {
				return fmt.Errorf("fetch bundle: %w", err)
			}

			var ok bool
			err = appCtx.Queue.Perform(ctx, func(ctx context.Context, p syncctx.Privileged) error {
				ok = appCtx.Sessions.EstablishSession(ctx, p, d, bundle)
				return nil
			})
			if err != nil {
				return err
			}
			if !ok {
				return establishFailed(d.RemoteID(), appCtx.Objects.Save(ctx))
			}

			// A device we had never decided on shows up as ignored until the
			// user verifies it.
			if !self.Trusts(d) && !self.Ignores(d) {
				appCtx.Trust.AddNewlyDiscoveredAsIgnored(ctx, []*model.Device{d}, nil)
			}
			if err := appCtx.Objects.Save(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session with %s established\nFingerprint: %s\n", d.RemoteID(), d.Fingerprint())
			if pending := d.MessagesMissingRecipient(); len(pending) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d message(s) waiting to be resent\n", len(pending))
			}
			return nil
		},
	}
}

// establishFailed reports a failed establishment together with any error
// saving the failed state.
func establishFailed(device domain.DeviceID, saveErr error) error {
	err := fmt.Errorf("could not establish a session with %s", device)
	if saveErr != nil {
		return errors.Join(err, fmt.Errorf("save: %w", saveErr))
	}
	return err
}

func resetSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-session <device-id>",
		Short: "Discard the session with a device so a new one is fetched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := findDevices(args)
			if err != nil {
				return err
			}
			if err := appCtx.Sessions.ResetSession(cmd.Context(), devices[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session with %s reset\n", args[0])
			return nil
		},
	}
}
