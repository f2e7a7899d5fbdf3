// Package identity bootstraps the long-term keys of the local device.
//
// It enforces the passphrase policy, generates the X25519 and Ed25519 key
// pairs and persists them through a domain.IdentityStore.
package identity
