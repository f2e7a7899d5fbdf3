// Package store provides file-based persistence for key material.
//
// Files live under the configured home directory and are written
// atomically. The identity is sealed with a passphrase (scrypt and
// ChaCha20-Poly1305); pre-keys and session records are plain JSON with
// owner-only permissions.
//
// Stores:
//   - Identity keys (IdentityFileStore)
//   - Pre-keys (PrekeyFileStore)
//   - Pairwise session records (SessionFileStore)
//
// The object graph lives in the sqlstore subpackage.
package store
