package prekey

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cipherclients/internal/crypto"
	"cipherclients/internal/domain"
	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
)

// ErrNoSignedPreKey is returned when a bundle is requested before any
// pre-keys were generated.
var ErrNoSignedPreKey = errors.New("prekey: no signed pre-key available")

// Service manages pre-key pairs and builds the public bundle.
type Service struct {
	ids   domain.IdentityStore
	ps    domain.PreKeyStore
	relay domain.RelayClient
	log   logging.Logger
}

func New(ids domain.IdentityStore, ps domain.PreKeyStore, relay domain.RelayClient, log logging.Logger) *Service {
	return &Service{ids: ids, ps: ps, relay: relay, log: log.With("component", "prekey")}
}

// GenerateAndStorePreKeys creates a signed pre-key pair and n one-time
// pairs. The new signed pre-key becomes the current one.
func (s *Service) GenerateAndStorePreKeys(passphrase string, n int) (domain.X25519Public, []domain.X25519Public, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.X25519Public{}, nil, err
	}

	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.X25519Public{}, nil, err
	}
	spkID := domain.SignedPreKeyID("spk-" + uuid.NewString())
	sig := crypto.SignEd25519(id.EdPriv, spkPub[:])
	if err := s.ps.SaveSignedPreKey(spkID, spkPriv, spkPub, sig); err != nil {
		return domain.X25519Public{}, nil, err
	}
	if err := s.ps.SetCurrentSignedPreKeyID(spkID); err != nil {
		return domain.X25519Public{}, nil, err
	}

	pairs := make([]domain.OneTimePreKeyPair, 0, n)
	publics := make([]domain.X25519Public, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return domain.X25519Public{}, nil, err
		}
		pairs = append(pairs, domain.OneTimePreKeyPair{
			ID:   domain.OneTimePreKeyID("opk-" + uuid.NewString()),
			Priv: priv,
			Pub:  pub,
		})
		publics = append(publics, pub)
	}
	if err := s.ps.SaveOneTimePreKeys(pairs); err != nil {
		return domain.X25519Public{}, nil, err
	}
	return spkPub, publics, nil
}

// LoadPreKeyBundle builds the public bundle of device from the current
// signed pre-key and the unused one-time pre-keys.
func (s *Service) LoadPreKeyBundle(passphrase string, device domain.DeviceID) (domain.PreKeyBundle, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}

	spkID, ok, err := s.ps.CurrentSignedPreKeyID()
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	if !ok {
		return domain.PreKeyBundle{}, ErrNoSignedPreKey
	}
	_, spkPub, sig, found, err := s.ps.LoadSignedPreKey(spkID)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	if !found {
		return domain.PreKeyBundle{}, ErrNoSignedPreKey
	}

	oneTime, err := s.ps.ListOneTimePreKeyPublics()
	if err != nil {
		return domain.PreKeyBundle{}, err
	}

	return domain.PreKeyBundle{
		DeviceID:              device,
		IdentityKey:           id.XPub,
		SigningKey:            id.EdPub,
		SignedPreKeyID:        spkID,
		SignedPreKey:          spkPub,
		SignedPreKeySignature: sig,
		OneTimePreKeys:        oneTime,
	}, nil
}

// Publish uploads the bundle of self to the relay and records how many
// one-time pre-keys it carries.
func (s *Service) Publish(ctx context.Context, passphrase string, self *model.Device) (domain.PreKeyBundle, error) {
	if self == nil || self.RemoteID().IsZero() {
		return domain.PreKeyBundle{}, fmt.Errorf("prekey: self device is not registered")
	}
	bundle, err := s.LoadPreKeyBundle(passphrase, self.RemoteID())
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	if err := s.relay.RegisterPreKeyBundle(ctx, bundle); err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("prekey: publish: %w", err)
	}

	self.SetKeysRemaining(int32(len(bundle.OneTimePreKeys)))
	self.Context().SetLocallyModifiedKeys(self, model.KeyNumberOfKeysRemaining)
	s.log.Info(ctx, "pre-key bundle published",
		"device", self.RemoteID(), "one_time_pre_keys", len(bundle.OneTimePreKeys))
	return bundle, nil
}

// Replenish generates n fresh one-time pre-keys and a new signed pre-key,
// then publishes the bundle.
func (s *Service) Replenish(ctx context.Context, passphrase string, self *model.Device, n int) (domain.PreKeyBundle, error) {
	if _, _, err := s.GenerateAndStorePreKeys(passphrase, n); err != nil {
		return domain.PreKeyBundle{}, err
	}
	return s.Publish(ctx, passphrase, self)
}

var _ domain.PreKeyService = (*Service)(nil)
