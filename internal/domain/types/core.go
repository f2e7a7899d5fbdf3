package types

// DeviceID is the remote identifier a backend assigns to a device.
// The empty value means the device was never registered remotely.
type DeviceID string

// String returns the string form of the device identifier.
func (id DeviceID) String() string { return string(id) }

// IsZero reports whether the identifier is unset.
func (id DeviceID) IsZero() bool { return id == "" }

// Fingerprint is the printable digest of a public identity key.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Bytes returns the fingerprint as the opaque byte form stored on devices.
func (f Fingerprint) Bytes() []byte {
	if f == "" {
		return nil
	}
	return []byte(f)
}

// SignedPreKeyID uniquely identifies a signed pre-key.
type SignedPreKeyID string

// String returns the string form of the identifier.
func (id SignedPreKeyID) String() string { return string(id) }

// OneTimePreKeyID uniquely identifies a one-time pre-key.
type OneTimePreKeyID string

// String returns the string form of the identifier.
func (id OneTimePreKeyID) String() string { return string(id) }
