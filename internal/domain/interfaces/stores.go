package interfaces

import domaintypes "cipherclients/internal/domain/types"

// IdentityStore persists the long-term identity keys of the local device.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	Exists() bool
}

// PreKeyStore manages signed and one-time pre-keys on disk.
type PreKeyStore interface {
	SaveSignedPreKey(
		id domaintypes.SignedPreKeyID,
		priv domaintypes.X25519Private,
		pub domaintypes.X25519Public,
		sig []byte,
	) error
	LoadSignedPreKey(
		id domaintypes.SignedPreKeyID,
	) (
		priv domaintypes.X25519Private,
		pub domaintypes.X25519Public,
		sig []byte,
		ok bool,
		err error,
	)

	SaveOneTimePreKeys(pairs []domaintypes.OneTimePreKeyPair) error
	ConsumeOneTimePreKey(id domaintypes.OneTimePreKeyID) (
		priv domaintypes.X25519Private,
		pub domaintypes.X25519Public,
		ok bool,
		err error,
	)
	ListOneTimePreKeyPublics() ([]domaintypes.OneTimePreKeyPublic, error)

	SetCurrentSignedPreKeyID(id domaintypes.SignedPreKeyID) error
	CurrentSignedPreKeyID() (domaintypes.SignedPreKeyID, bool, error)
}

// SessionStore persists pairwise session records by remote device.
type SessionStore interface {
	SaveSession(device domaintypes.DeviceID, rec domaintypes.SessionRecord) error
	LoadSession(device domaintypes.DeviceID) (domaintypes.SessionRecord, bool, error)
	DeleteSession(device domaintypes.DeviceID) error
	ListSessions() ([]domaintypes.DeviceID, error)
}
