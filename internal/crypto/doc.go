// Package crypto exposes the primitives the key store builds on.
//
// Contents
//
//   - X25519 key generation and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Identity fingerprints shown to users when verifying devices
//     (Fingerprint)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//
// Returned keys use the fixed-size array types from internal/domain.
// Callers should treat returned secrets as sensitive and Wipe scratch
// buffers once they are done with them.
package crypto
