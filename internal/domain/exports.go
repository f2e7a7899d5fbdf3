// Package domain re-exports the shared types and interfaces so callers can
// import a single package.
package domain

import (
	"cipherclients/internal/domain/interfaces"
	"cipherclients/internal/domain/types"
)

type (
	DeviceID            = types.DeviceID
	Fingerprint         = types.Fingerprint
	SignedPreKeyID      = types.SignedPreKeyID
	OneTimePreKeyID     = types.OneTimePreKeyID
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	Identity            = types.Identity
	OneTimePreKeyPair   = types.OneTimePreKeyPair
	OneTimePreKeyPublic = types.OneTimePreKeyPublic
	PreKeyBundle        = types.PreKeyBundle
	Handshake           = types.Handshake
	SessionRecord       = types.SessionRecord
)

type (
	IdentityStore    = interfaces.IdentityStore
	PreKeyStore      = interfaces.PreKeyStore
	SessionStore     = interfaces.SessionStore
	SessionDirectory = interfaces.SessionDirectory
	KeyStore         = interfaces.KeyStore
	RelayClient      = interfaces.RelayClient
	IdentityService  = interfaces.IdentityService
	PreKeyService    = interfaces.PreKeyService
)
