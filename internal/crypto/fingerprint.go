package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"cipherclients/internal/domain"
)

// Fingerprint returns the hex SHA-256 digest of a public identity key.
// Users compare these out of band, so the full digest is kept.
func Fingerprint(pub domain.X25519Public) domain.Fingerprint {
	sum := sha256.Sum256(pub[:])
	return domain.Fingerprint(hex.EncodeToString(sum[:]))
}
