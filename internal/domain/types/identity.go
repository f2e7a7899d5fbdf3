package types

// Identity holds the long-term X25519 agreement key and Ed25519 signing key
// of the local device.
type Identity struct {
	XPub   X25519Public   `json:"xpub"`
	XPriv  X25519Private  `json:"xpriv"`
	EdPub  Ed25519Public  `json:"edpub"`
	EdPriv Ed25519Private `json:"edpriv"`
}

// IsZero reports whether the identity was never generated.
func (id Identity) IsZero() bool { return id.XPub.IsZero() }
