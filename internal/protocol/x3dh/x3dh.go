package x3dh

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"cipherclients/internal/crypto"
	"cipherclients/internal/domain"
)

const rootKeySize = 32

var (
	ErrBadSignedPreKey  = errors.New("x3dh: signed pre-key signature invalid")
	ErrIncompleteBundle = errors.New("x3dh: pre-key bundle incomplete")
)

var rootInfo = []byte("cipherclients-x3dh")

type dhPair struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

// InitiatorRoot derives the root key for a session opened against bundle.
// When the bundle carries one-time pre-keys the first one is used.
func InitiatorRoot(
	id domain.Identity,
	bundle domain.PreKeyBundle,
) (
	root []byte,
	spkID domain.SignedPreKeyID,
	opkID domain.OneTimePreKeyID,
	ephPub domain.X25519Public,
	err error,
) {
	if bundle.IdentityKey.IsZero() || bundle.SignedPreKey.IsZero() {
		return nil, "", "", ephPub, ErrIncompleteBundle
	}
	if !VerifySignedPreKey(bundle.SigningKey, bundle.SignedPreKey, bundle.SignedPreKeySignature) {
		return nil, "", "", ephPub, ErrBadSignedPreKey
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, "", "", ephPub, fmt.Errorf("x3dh: ephemeral key: %w", err)
	}
	defer crypto.Wipe(ephPriv[:])

	pairs := []dhPair{
		{id.XPriv, bundle.SignedPreKey},
		{ephPriv, bundle.IdentityKey},
		{ephPriv, bundle.SignedPreKey},
	}
	if len(bundle.OneTimePreKeys) > 0 {
		opk := bundle.OneTimePreKeys[0]
		pairs = append(pairs, dhPair{ephPriv, opk.Pub})
		opkID = opk.ID
	}

	root, err = derive(pairs)
	if err != nil {
		return nil, "", "", ephPub, err
	}
	return root, bundle.SignedPreKeyID, opkID, ephPub, nil
}

// ResponderRoot derives the root key on the bundle owner's side. opkPriv
// must be non-nil exactly when the handshake names a one-time pre-key.
func ResponderRoot(
	id domain.Identity,
	spkPriv domain.X25519Private,
	opkPriv *domain.X25519Private,
	hs domain.Handshake,
) ([]byte, error) {
	if (hs.OneTimePreKeyID != "") != (opkPriv != nil) {
		return nil, fmt.Errorf("x3dh: one-time pre-key mismatch for %q", hs.OneTimePreKeyID)
	}
	pairs := []dhPair{
		{spkPriv, hs.InitiatorIdentityKey},
		{id.XPriv, hs.EphemeralKey},
		{spkPriv, hs.EphemeralKey},
	}
	if opkPriv != nil {
		pairs = append(pairs, dhPair{*opkPriv, hs.EphemeralKey})
	}
	return derive(pairs)
}

// VerifySignedPreKey checks the signed pre-key signature.
func VerifySignedPreKey(edPub domain.Ed25519Public, spk domain.X25519Public, sig []byte) bool {
	return crypto.VerifyEd25519(edPub, spk.Slice(), sig)
}

func derive(pairs []dhPair) ([]byte, error) {
	transcript := make([]byte, 0, 32*len(pairs))
	defer func() { crypto.Wipe(transcript) }()

	for i, p := range pairs {
		shared, err := crypto.DH(p.priv, p.pub)
		if err != nil {
			return nil, fmt.Errorf("x3dh: dh%d: %w", i+1, err)
		}
		transcript = append(transcript, shared[:]...)
		crypto.Wipe(shared[:])
	}

	root := make([]byte, rootKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, transcript, nil, rootInfo), root); err != nil {
		return nil, fmt.Errorf("x3dh: hkdf: %w", err)
	}
	return root, nil
}
