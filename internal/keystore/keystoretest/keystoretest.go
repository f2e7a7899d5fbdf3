// Package keystoretest builds key stores and remote peers for tests.
package keystoretest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cipherclients/internal/crypto"
	"cipherclients/internal/domain"
	"cipherclients/internal/keystore"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/store"
)

// NewIdentity generates a fresh identity.
func NewIdentity(t testing.TB) domain.Identity {
	t.Helper()
	xPriv, xPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	edPriv, edPub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	return domain.Identity{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv}
}

// New returns a KeyStore with a fresh identity, persisting into a temp dir.
func New(t testing.TB) (*keystore.KeyStore, domain.Identity) {
	t.Helper()
	id := NewIdentity(t)
	ks := keystore.New(keystore.Static(id), store.NewSessionFileStore(t.TempDir()), logging.Discard())
	return ks, id
}

// Peer is a remote device able to publish bundles.
type Peer struct {
	ID       domain.DeviceID
	Identity domain.Identity
}

// NewPeer returns a remote device with a fresh identity.
func NewPeer(t testing.TB, id domain.DeviceID) Peer {
	t.Helper()
	return Peer{ID: id, Identity: NewIdentity(t)}
}

// Bundle returns a valid pre-key bundle with one one-time pre-key.
func (p Peer) Bundle(t testing.TB) domain.PreKeyBundle {
	t.Helper()
	_, spk, err := crypto.GenerateX25519()
	require.NoError(t, err)
	_, opk, err := crypto.GenerateX25519()
	require.NoError(t, err)
	return domain.PreKeyBundle{
		DeviceID:              p.ID,
		IdentityKey:           p.Identity.XPub,
		SigningKey:            p.Identity.EdPub,
		SignedPreKeyID:        "spk-1",
		SignedPreKey:          spk,
		SignedPreKeySignature: crypto.SignEd25519(p.Identity.EdPriv, spk[:]),
		OneTimePreKeys:        []domain.OneTimePreKeyPublic{{ID: "opk-1", Pub: opk}},
	}
}

// Fingerprint is what a session with p reports as remote fingerprint.
func (p Peer) Fingerprint() []byte {
	return crypto.Fingerprint(p.Identity.XPub).Bytes()
}

// CorruptBundle returns a bundle whose signed pre-key signature is invalid.
func (p Peer) CorruptBundle(t testing.TB) domain.PreKeyBundle {
	t.Helper()
	b := p.Bundle(t)
	b.SignedPreKeySignature = make([]byte, len(b.SignedPreKeySignature))
	return b
}
