package interfaces

import (
	"context"

	domaintypes "cipherclients/internal/domain/types"
)

// SessionDirectory is the view of the key store handed to a transaction.
// It is only valid for the duration of the transaction that produced it.
type SessionDirectory interface {
	HasSession(device domaintypes.DeviceID) bool
	CreateSession(device domaintypes.DeviceID, bundle domaintypes.PreKeyBundle) error
	DeleteSession(device domaintypes.DeviceID) error
	Sessions() []domaintypes.DeviceID

	// Fingerprint returns the remote identity fingerprint of an
	// established session, or nil when there is none.
	Fingerprint(device domaintypes.DeviceID) []byte
	LocalFingerprint() []byte

	Encrypt(device domaintypes.DeviceID, plaintext []byte) ([]byte, error)
	Decrypt(device domaintypes.DeviceID, ciphertext []byte) ([]byte, error)
}

// KeyStore serializes access to pairwise session state. Transactions may
// nest: calling PerformTransaction with the context handed to an enclosing
// transaction runs the work inline.
type KeyStore interface {
	PerformTransaction(
		ctx context.Context,
		work func(ctx context.Context, dir SessionDirectory) error,
	) error
}
