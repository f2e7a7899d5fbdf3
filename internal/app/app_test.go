package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherclients/internal/app"
	"cipherclients/internal/observability/logging"
)

const passphrase = "Correct-Horse-9-Battery"

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := app.LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, app.DefaultConfig(), cfg)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"CIPHERCLIENTS_RELAY_URL=http://relay.local:9000/\n"+
			"CIPHERCLIENTS_LOG_LEVEL=debug\n"+
			"CIPHERCLIENTS_LOG_FORMAT=json\n"+
			"CIPHERCLIENTS_APP_VERSION=2.3.0\n",
	), 0o600))
	t.Setenv("CIPHERCLIENTS_LOG_LEVEL", "warn")
	t.Setenv("CIPHERCLIENTS_HOME", "/tmp/cc-home")

	cfg, err := app.LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, "http://relay.local:9000", cfg.RelayURL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, "2.3.0", cfg.AppVersion)
	assert.Equal(t, "/tmp/cc-home", cfg.Home)
}

func newWire(t *testing.T, home string) *app.Wire {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.Home = home
	w, err := app.NewWire(context.Background(), cfg, passphrase, logging.Discard())
	require.NoError(t, err)
	return w
}

func TestWire_BootstrapPersists(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()

	w := newWire(t, home)
	_, fp, err := w.Identity.GenerateIdentity(passphrase)
	require.NoError(t, err)
	_, err = w.SelfDevice()
	require.Error(t, err)

	self, err := w.Bootstrap(ctx, "me", "laptop01")
	require.NoError(t, err)
	assert.Equal(t, fp.Bytes(), self.Fingerprint())
	require.NotNil(t, w.Objects.SelfConversation())

	again, err := w.Bootstrap(ctx, "me", "laptop01")
	require.NoError(t, err)
	assert.Same(t, self, again)
	_, err = w.Bootstrap(ctx, "me", "other")
	assert.Error(t, err)
	require.NoError(t, w.Close(ctx))

	reopened := newWire(t, home)
	t.Cleanup(func() { _ = reopened.Close(ctx) })
	got, err := reopened.SelfDevice()
	require.NoError(t, err)
	assert.Equal(t, "laptop01", got.RemoteID().String())
	assert.Equal(t, fp.Bytes(), got.Fingerprint())
	assert.Equal(t, "me", reopened.Objects.SelfUser().Name())
}
