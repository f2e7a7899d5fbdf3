package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const envelopeVersion = 1

// ErrWrongPassphrase is returned when a sealed file cannot be opened, either
// because the passphrase is wrong or the ciphertext was tampered with.
var ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted file")

type kdfParams struct {
	N int `json:"scrypt_N"`
	R int `json:"scrypt_r"`
	P int `json:"scrypt_p"`
}

var defaultKDF = kdfParams{N: 1 << 15, R: 8, P: 1}

// envelope is the on-disk form of a passphrase-sealed payload.
type envelope struct {
	V int `json:"v"`
	kdfParams
	Salt   []byte `json:"salt"`
	Cipher []byte `json:"cipher"`
}

func seal(passphrase string, raw []byte, params kdfParams) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := envelopeCipher(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	// The key is unique per salt, so a fixed nonce never repeats under it.
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return json.Marshal(envelope{
		V:         envelopeVersion,
		kdfParams: params,
		Salt:      salt,
		Cipher:    aead.Seal(nil, nonce, raw, salt),
	})
}

func open(passphrase string, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("store: decode envelope: %w", err)
	}
	if env.V > envelopeVersion {
		return nil, fmt.Errorf("store: unsupported envelope version %d", env.V)
	}
	aead, err := envelopeCipher(passphrase, env.Salt, env.kdfParams)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	pt, err := aead.Open(nil, nonce, env.Cipher, env.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func envelopeCipher(passphrase string, salt []byte, p kdfParams) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("store: derive key: %w", err)
	}
	return chacha20poly1305.New(key)
}
