package relay_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherclients/internal/crypto"
	"cipherclients/internal/domain"
	"cipherclients/internal/keystore/keystoretest"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/observability/metrics"
	"cipherclients/internal/relay"
)

func newRelay(t *testing.T) *relay.HTTP {
	t.Helper()
	srv := httptest.NewServer(relay.NewServer(logging.Discard()))
	t.Cleanup(srv.Close)
	return relay.NewHTTP(srv.URL + "/")
}

func bundleWithKeys(t *testing.T, id domain.DeviceID, n int) domain.PreKeyBundle {
	t.Helper()
	b := keystoretest.NewPeer(t, id).Bundle(t)
	for i := len(b.OneTimePreKeys); i < n; i++ {
		_, pub, err := crypto.GenerateX25519()
		require.NoError(t, err)
		b.OneTimePreKeys = append(b.OneTimePreKeys, domain.OneTimePreKeyPublic{
			ID:  domain.OneTimePreKeyID(fmt.Sprintf("opk-%d", i+1)),
			Pub: pub,
		})
	}
	return b
}

func TestRegisterAndFetchPopsOneTimeKeys(t *testing.T) {
	ctx := context.Background()
	c := newRelay(t)
	b := bundleWithKeys(t, "bob-dev", 2)
	require.NoError(t, c.RegisterPreKeyBundle(ctx, b))

	first, err := c.FetchPreKeyBundle(ctx, "bob-dev")
	require.NoError(t, err)
	require.Len(t, first.OneTimePreKeys, 1)
	assert.Equal(t, b.OneTimePreKeys[0], first.OneTimePreKeys[0])
	assert.Equal(t, b.SignedPreKey, first.SignedPreKey)

	second, err := c.FetchPreKeyBundle(ctx, "bob-dev")
	require.NoError(t, err)
	require.Len(t, second.OneTimePreKeys, 1)
	assert.Equal(t, b.OneTimePreKeys[1], second.OneTimePreKeys[0])

	third, err := c.FetchPreKeyBundle(ctx, "bob-dev")
	require.NoError(t, err)
	assert.Empty(t, third.OneTimePreKeys)
	assert.Equal(t, b.IdentityKey, third.IdentityKey)
}

func TestFetchUnknown(t *testing.T) {
	_, err := newRelay(t).FetchPreKeyBundle(context.Background(), "nobody")
	assert.ErrorIs(t, err, relay.ErrNotFound)
}

func TestRegisterRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	c := newRelay(t)
	peer := keystoretest.NewPeer(t, "mallory")

	err := c.RegisterPreKeyBundle(ctx, peer.CorruptBundle(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	_, err = c.FetchPreKeyBundle(ctx, "mallory")
	assert.ErrorIs(t, err, relay.ErrNotFound)
}

func TestRegisterRejectsMissingDevice(t *testing.T) {
	b := keystoretest.NewPeer(t, "").Bundle(t)
	assert.Error(t, newRelay(t).RegisterPreKeyBundle(context.Background(), b))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer(logging.Discard()))
	defer srv.Close()

	before := testutil.ToFloat64(metrics.RelayRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200"))
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RelayRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
