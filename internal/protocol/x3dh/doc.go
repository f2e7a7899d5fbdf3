// Package x3dh implements the X3DH key agreement that seeds a pairwise
// session from a published pre-key bundle.
//
// # Flows
//
// Initiator:
//  1. Verify the signed pre-key signature against the bundle signing key.
//  2. Generate an ephemeral X25519 key pair.
//  3. Compute DH values (IKa·SPKb, EKa·IKb, EKa·SPKb[, EKa·OPKb]).
//  4. HKDF over the concatenated DH outputs to produce the root key.
//
// Responder:
//  1. Receive the Handshake (initiator IK, ephemeral EK, SPK id[, OPK id]).
//  2. Compute the mirrored DH set (SPKb·IKa, IKb·EKa, SPKb·EKa[, OPKb·EKa]).
//  3. HKDF the same transcript to the identical root key.
//
// # Errors
//
// ErrBadSignedPreKey is returned when the bundle signature does not verify.
// ErrIncompleteBundle is returned for bundles missing mandatory keys.
package x3dh
