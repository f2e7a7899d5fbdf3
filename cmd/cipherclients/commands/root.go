package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cipherclients/internal/app"
	"cipherclients/internal/domain"
	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
)

var (
	envFile    string
	home       string
	relayURL   string
	logLevel   string
	passphrase string

	appCtx *app.Wire
)

func Execute() error {
	return execute(newRootCmd())
}

// execute runs root and closes the wire even when the command failed.
func execute(root *cobra.Command) error {
	err := root.Execute()
	if appCtx != nil {
		err = errors.Join(err, appCtx.Close(root.Context()))
		appCtx = nil
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cipherclients",
		Short:         "Manage devices, sessions and trust of an end-to-end encrypted client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(envFile)
			if err != nil {
				return err
			}
			if home != "" {
				cfg.Home = home
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			log := logging.New(logging.Config{
				Component:   "cipherclients",
				Environment: cfg.Environment,
				Level:       cfg.LogLevel,
				JSON:        cfg.LogJSON,
			})
			w, err := app.NewWire(cmd.Context(), cfg, passphrase, log)
			if err != nil {
				return err
			}
			appCtx = w
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with CIPHERCLIENTS_* settings")
	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.cipherclients)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to protect keys")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		deviceCmd(),
		trustCmd(),
		ignoreCmd(),
		establishCmd(),
		resetSessionCmd(),
		conversationCmd(),
		backupCmd(),
	)
	root.SetContext(context.Background())
	return root
}

func requirePassphrase() error {
	if passphrase == "" {
		return errors.New("passphrase required (-p)")
	}
	return nil
}

// findUser returns the user with the given name.
func findUser(name string) (*model.User, bool) {
	for _, u := range appCtx.Objects.Users() {
		if u.Name() == name {
			return u, true
		}
	}
	return nil, false
}

// findDevices resolves remote ids to known devices.
func findDevices(ids []string) ([]*model.Device, error) {
	out := make([]*model.Device, 0, len(ids))
	for _, id := range ids {
		d, ok := appCtx.Objects.DeviceByRemoteID(domain.DeviceID(id))
		if !ok {
			return nil, fmt.Errorf("unknown device %q", id)
		}
		out = append(out, d)
	}
	return out, nil
}
