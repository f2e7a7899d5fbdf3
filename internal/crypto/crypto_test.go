package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherclients/internal/crypto"
)

func TestDHIsSymmetric(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	ab, err := crypto.DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := crypto.DH(bPriv, aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	require.NoError(t, err)

	sig := crypto.SignEd25519(priv, []byte("spk"))
	assert.True(t, crypto.VerifyEd25519(pub, []byte("spk"), sig))
	assert.False(t, crypto.VerifyEd25519(pub, []byte("other"), sig))
	assert.False(t, crypto.VerifyEd25519(pub, []byte("spk"), sig[:10]))
}

func TestFingerprintIsStable(t *testing.T) {
	_, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	_, other, err := crypto.GenerateX25519()
	require.NoError(t, err)

	fp := crypto.Fingerprint(pub)
	assert.Len(t, fp.String(), 64)
	assert.Equal(t, fp, crypto.Fingerprint(pub))
	assert.NotEqual(t, fp, crypto.Fingerprint(other))
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	crypto.Wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
