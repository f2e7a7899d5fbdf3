// Package prekey generates the self device's signed and one-time pre-keys
// and publishes them as a bundle on the relay.
package prekey
