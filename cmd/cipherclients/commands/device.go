package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cipherclients/internal/domain"
	"cipherclients/internal/model"
	"cipherclients/internal/services/registry"
	"cipherclients/internal/syncctx"
)

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage known devices",
	}
	cmd.AddCommand(deviceAddCmd(), deviceListCmd(), deviceDeleteCmd())
	return cmd
}

func deviceAddCmd() *cobra.Command {
	var (
		payloadFile string
		payload     registry.DevicePayload
		deviceType  string
	)
	cmd := &cobra.Command{
		Use:   "add <user> [device-id]",
		Short: "Record a device of a user, as reported by the backend",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if payloadFile != "" {
				b, err := os.ReadFile(payloadFile)
				if err != nil {
					return err
				}
				if payload, err = registry.ParsePayload(b); err != nil {
					return err
				}
			} else {
				if len(args) < 2 {
					return fmt.Errorf("device id or --payload required")
				}
				payload.ID = domain.DeviceID(args[1])
				payload.Type = model.DeviceType(deviceType)
				now := time.Now().UTC()
				payload.Time = &now
			}

			user, ok := findUser(args[0])
			if !ok {
				user = appCtx.Objects.InsertUser(uuid.New(), args[0])
			}
			d, err := appCtx.Registry.Upsert(cmd.Context(), user, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Device %s of %s recorded\n", d.RemoteID(), user.Name())
			return nil
		},
	}
	cmd.Flags().StringVar(&payloadFile, "payload", "", "JSON device payload file")
	cmd.Flags().StringVar(&deviceType, "type", string(model.DeviceTypePermanent), "permanent, temporary or legalhold")
	cmd.Flags().StringVar(&payload.Label, "label", "", "device label")
	cmd.Flags().StringVar(&payload.Model, "model", "", "device model")
	cmd.Flags().StringVar(&payload.Class, "class", "", "device class, e.g. phone or desktop")
	return cmd
}

func deviceListCmd() *cobra.Command {
	var attention bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices with their trust state",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices := appCtx.Objects.Devices()
			if attention {
				devices = appCtx.Registry.DevicesNeedingAttention()
			}
			self := appCtx.Objects.SelfDevice()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DEVICE\tUSER\tTYPE\tLABEL\tTRUST\tFLAGS")
			for _, d := range devices {
				owner := "-"
				if u := d.User(); u != nil {
					owner = u.Name()
				}
				attrs := d.Attributes()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					d.RemoteID(), owner, attrs.Type, attrs.Label, trustState(self, d), flags(self, d))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&attention, "attention", false, "only devices with corrupted sessions")
	return cmd
}

func trustState(self, d *model.Device) string {
	switch {
	case self == nil:
		return "-"
	case d == self:
		return "self"
	case self.Trusts(d):
		return "trusted"
	case self.Ignores(d):
		return "ignored"
	default:
		return "-"
	}
}

func flags(self, d *model.Device) string {
	var out []string
	if self != nil && self.IsMissing(d) {
		out = append(out, "missing")
	}
	if d.FailedToEstablishSession() {
		out = append(out, "failed")
	}
	if d.NeedsToNotifyUser() {
		out = append(out, "new")
	}
	if d.MarkedForDeletion() {
		out = append(out, "deleting")
	}
	if d.Fingerprint() != nil {
		out = append(out, "session")
	}
	return strings.Join(out, ",")
}

func deviceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <device-id>",
		Short: "End the session with a device and forget it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := findDevices(args)
			if err != nil {
				return err
			}
			d := devices[0]
			if self := appCtx.Objects.SelfDevice(); self != nil && d != self && d.User() == self.User() {
				appCtx.Registry.MarkForDeletion(d)
			}
			err = appCtx.Queue.Perform(cmd.Context(), func(ctx context.Context, p syncctx.Privileged) error {
				return appCtx.Registry.DeleteAndEndSession(ctx, p, d)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Device %s deleted\n", args[0])
			return nil
		},
	}
}
