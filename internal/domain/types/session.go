package types

// SessionRecord is the persisted state of one pairwise session, keyed by
// the remote device identifier.
type SessionRecord struct {
	Device                DeviceID        `json:"device"`
	RootKey               []byte          `json:"root_key"`
	PeerIdentityKey       X25519Public    `json:"peer_identity_key"`
	PeerSigningKey        Ed25519Public   `json:"peer_signing_key"`
	PeerSignedPreKey      X25519Public    `json:"peer_signed_pre_key"`
	SignedPreKeyID        SignedPreKeyID  `json:"signed_pre_key_id"`
	OneTimePreKeyID       OneTimePreKeyID `json:"one_time_pre_key_id,omitempty"`
	InitiatorEphemeralKey X25519Public    `json:"initiator_ephemeral_key"`
	CreatedUTC            int64           `json:"created_utc"`
}

// Handshake returns the parameters the responder needs to derive the same
// root key.
func (r SessionRecord) Handshake(local X25519Public) Handshake {
	return Handshake{
		InitiatorIdentityKey: local,
		EphemeralKey:         r.InitiatorEphemeralKey,
		SignedPreKeyID:       r.SignedPreKeyID,
		OneTimePreKeyID:      r.OneTimePreKeyID,
	}
}
