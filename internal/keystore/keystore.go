// Package keystore implements the pairwise session store behind the
// session lifecycle manager.
//
// A KeyStore hands a SessionDirectory to one transaction at a time.
// Sessions are seeded with X3DH from the remote device's pre-key bundle
// and persisted through a domain.SessionStore keyed by device identifier.
package keystore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"cipherclients/internal/crypto"
	"cipherclients/internal/domain"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/protocol/x3dh"
)

var (
	ErrNoSession       = errors.New("keystore: no session for device")
	ErrInvalidDeviceID = errors.New("keystore: empty device identifier")
	ErrBundleMismatch  = errors.New("keystore: bundle belongs to another device")
	ErrDecrypt         = errors.New("keystore: cannot decrypt message")
)

var messageInfo = []byte("cipherclients-message-key")

// IdentitySource yields the local identity. It is consulted on the first
// transaction, so a KeyStore can be built before the identity exists.
type IdentitySource func() (domain.Identity, error)

// FromIdentityStore reads the identity from ids with passphrase.
func FromIdentityStore(ids domain.IdentityStore, passphrase string) IdentitySource {
	return func() (domain.Identity, error) { return ids.LoadIdentity(passphrase) }
}

// Static returns an IdentitySource for an identity already in memory.
func Static(id domain.Identity) IdentitySource {
	return func() (domain.Identity, error) { return id, nil }
}

// KeyStore serializes transactions over the session store.
type KeyStore struct {
	mu       sync.Mutex
	sessions domain.SessionStore
	source   IdentitySource
	identity *domain.Identity
	log      logging.Logger
	now      func() time.Time
}

// New returns a KeyStore persisting sessions in sessions.
func New(source IdentitySource, sessions domain.SessionStore, log logging.Logger) *KeyStore {
	return &KeyStore{
		sessions: sessions,
		source:   source,
		log:      log.With("component", "keystore"),
		now:      time.Now,
	}
}

type txKey struct{}

// PerformTransaction runs work with exclusive access to the directory.
// Passing the ctx handed to work into a nested PerformTransaction runs the
// nested work inline instead of deadlocking.
func (k *KeyStore) PerformTransaction(
	ctx context.Context,
	work func(ctx context.Context, dir domain.SessionDirectory) error,
) error {
	if dir, ok := ctx.Value(txKey{}).(*directory); ok && dir.ks == k {
		return work(ctx, dir)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.identity == nil {
		id, err := k.source()
		if err != nil {
			return fmt.Errorf("keystore: load identity: %w", err)
		}
		k.identity = &id
	}

	dir := &directory{ks: k}
	return work(context.WithValue(ctx, txKey{}, dir), dir)
}

var _ domain.KeyStore = (*KeyStore)(nil)

// directory is valid only inside the transaction that created it.
type directory struct {
	ks *KeyStore
}

func (d *directory) load(id domain.DeviceID) (domain.SessionRecord, bool) {
	if id.IsZero() {
		return domain.SessionRecord{}, false
	}
	rec, ok, err := d.ks.sessions.LoadSession(id)
	if err != nil {
		d.ks.log.Error(context.Background(), "cannot read session", "device", id, "err", err)
		return domain.SessionRecord{}, false
	}
	return rec, ok
}

func (d *directory) HasSession(id domain.DeviceID) bool {
	_, ok := d.load(id)
	return ok
}

func (d *directory) CreateSession(id domain.DeviceID, bundle domain.PreKeyBundle) error {
	if id.IsZero() {
		return ErrInvalidDeviceID
	}
	if !bundle.DeviceID.IsZero() && bundle.DeviceID != id {
		return fmt.Errorf("%w: %s != %s", ErrBundleMismatch, bundle.DeviceID, id)
	}

	root, spkID, opkID, eph, err := x3dh.InitiatorRoot(*d.ks.identity, bundle)
	if err != nil {
		return err
	}
	rec := domain.SessionRecord{
		Device:                id,
		RootKey:               root,
		PeerIdentityKey:       bundle.IdentityKey,
		PeerSigningKey:        bundle.SigningKey,
		PeerSignedPreKey:      bundle.SignedPreKey,
		SignedPreKeyID:        spkID,
		OneTimePreKeyID:       opkID,
		InitiatorEphemeralKey: eph,
		CreatedUTC:            d.ks.now().UTC().Unix(),
	}
	if err := d.ks.sessions.SaveSession(id, rec); err != nil {
		return fmt.Errorf("keystore: save session: %w", err)
	}
	return nil
}

func (d *directory) DeleteSession(id domain.DeviceID) error {
	if id.IsZero() {
		return nil
	}
	return d.ks.sessions.DeleteSession(id)
}

func (d *directory) Sessions() []domain.DeviceID {
	ids, err := d.ks.sessions.ListSessions()
	if err != nil {
		d.ks.log.Error(context.Background(), "cannot list sessions", "err", err)
		return nil
	}
	return ids
}

func (d *directory) Fingerprint(id domain.DeviceID) []byte {
	rec, ok := d.load(id)
	if !ok {
		return nil
	}
	return crypto.Fingerprint(rec.PeerIdentityKey).Bytes()
}

func (d *directory) LocalFingerprint() []byte {
	return crypto.Fingerprint(d.ks.identity.XPub).Bytes()
}

func (d *directory) Encrypt(id domain.DeviceID, plaintext []byte) ([]byte, error) {
	rec, ok := d.load(id)
	if !ok {
		return nil, ErrNoSession
	}
	aead, err := messageCipher(rec.RootKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(id)), nil
}

func (d *directory) Decrypt(id domain.DeviceID, ciphertext []byte) ([]byte, error) {
	rec, ok := d.load(id)
	if !ok {
		return nil, ErrNoSession
	}
	aead, err := messageCipher(rec.RootKey)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecrypt
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, body, []byte(id))
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func messageCipher(root []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	defer crypto.Wipe(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, root, nil, messageInfo), key); err != nil {
		return nil, fmt.Errorf("keystore: derive message key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
