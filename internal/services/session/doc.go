// Package session manages the lifecycle of pairwise sessions between the
// self device and remote devices.
//
// It creates sessions from pre-key bundles, resets and deletes them, caches
// remote fingerprints on devices and tracks the self device's remaining
// one-time pre-keys. Anything touching the key store runs on the privileged
// sync context: either the caller holds a syncctx.Privileged token or the
// service marshals the work onto the queue itself. Cryptographic failures are
// contained here and surface as the device's failed-session flag.
package session
