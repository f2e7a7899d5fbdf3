package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cipherclients/internal/backup"
	"cipherclients/internal/store/sqlstore"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write and check backup metadata",
	}
	cmd.AddCommand(backupExportCmd(), backupVerifyCmd())
	return cmd
}

func backupExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write metadata describing a backup of this device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			self, err := appCtx.SelfDevice()
			if err != nil {
				return err
			}
			meta, ok := backup.FromDevice(self, appCtx.Config.AppVersion, strconv.Itoa(sqlstore.SchemaVersion))
			if !ok {
				return fmt.Errorf("self device has no owner")
			}
			if err := meta.Write(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup metadata written to %s\n", args[0])
			return nil
		},
	}
}

func backupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <path>",
		Short: "Check that a backup can be restored by this account and version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := appCtx.Objects.SelfUser()
			if user == nil {
				return fmt.Errorf("no self user; run register first")
			}
			meta, err := backup.Read(args[0])
			if err != nil {
				return err
			}
			if err := meta.Verify(user.ID(), appCtx.Config.AppVersion); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup from %s (%s, app %s) can be restored\n",
				meta.ClientIdentifier, meta.Platform, meta.AppVersion)
			return nil
		},
	}
}
