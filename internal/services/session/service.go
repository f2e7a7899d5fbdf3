package session

import (
	"context"
	"errors"
	"fmt"

	"cipherclients/internal/domain"
	"cipherclients/internal/keystore"
	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/observability/metrics"
	"cipherclients/internal/syncctx"
)

var (
	// ErrNoSession is returned by Encrypt and Decrypt for devices without
	// an established session.
	ErrNoSession = errors.New("session: no session with device")
	// ErrCorrupted wraps cryptographic failures on an existing session.
	ErrCorrupted = errors.New("session: session corrupted")
)

// Service owns session state for the self device.
type Service struct {
	oc    *model.ObjectContext
	keys  domain.KeyStore
	queue *syncctx.Queue
	log   logging.Logger
}

// New returns a session service over the given graph and key store.
func New(oc *model.ObjectContext, keys domain.KeyStore, queue *syncctx.Queue, log logging.Logger) *Service {
	return &Service{oc: oc, keys: keys, queue: queue, log: log.With("component", "session")}
}

// EstablishSession replaces any session with device by one created from
// bundle and caches the remote fingerprint. It reports whether a session now
// exists. On failure no session is left and the device is flagged as failed.
//
// Establishing is the only way to clear the failed flag of a device that
// stays registered. Messages waiting for device stay queued on it; the
// sender takes them with TakeMessagesMissingRecipient and resends them.
func (s *Service) EstablishSession(
	ctx context.Context,
	p syncctx.Privileged,
	device *model.Device,
	bundle domain.PreKeyBundle,
) bool {
	p.MustBeValid()

	self := s.oc.SelfDevice()
	remoteID := device.RemoteID()
	switch {
	case self == nil:
		s.log.Warn(ctx, "no self device, cannot establish session", "device", remoteID)
		return false
	case device == self:
		s.log.Warn(ctx, "refusing to establish a session with the self device")
		return false
	case remoteID.IsZero():
		s.log.Warn(ctx, "device has no remote identifier", "object", device.ObjectID())
		return false
	}

	var fingerprint []byte
	err := s.keys.PerformTransaction(ctx, func(_ context.Context, dir domain.SessionDirectory) error {
		if err := dir.DeleteSession(remoteID); err != nil {
			return fmt.Errorf("delete stale session: %w", err)
		}
		if err := dir.CreateSession(remoteID, bundle); err != nil {
			return err
		}
		fingerprint = dir.Fingerprint(remoteID)
		return nil
	})
	if err != nil {
		s.log.Error(ctx, "cannot create session for prekey", "device", remoteID, "err", err)
		device.SetFailedToEstablishSession(true)
		metrics.SessionsEstablishedTotal.WithLabelValues("failure").Inc()
		return false
	}

	device.SetFingerprint(fingerprint)
	device.SetFailedToEstablishSession(false)
	self.RemoveMissing(device)
	if pending := device.MessagesMissingRecipient(); len(pending) > 0 {
		s.log.Info(ctx, "session established for pending messages", "device", remoteID, "messages", len(pending))
	}
	metrics.SessionsEstablishedTotal.WithLabelValues("success").Inc()
	return true
}

// DeleteSession drops the key-store session with device. The self device
// and devices without a remote identifier are left alone.
func (s *Service) DeleteSession(ctx context.Context, p syncctx.Privileged, device *model.Device) error {
	p.MustBeValid()

	self := s.oc.SelfDevice()
	remoteID := device.RemoteID()
	if self == nil || remoteID.IsZero() || remoteID == self.RemoteID() {
		return nil
	}
	return s.keys.PerformTransaction(ctx, func(_ context.Context, dir domain.SessionDirectory) error {
		return dir.DeleteSession(remoteID)
	})
}

// ResetSession discards the session with device so that it is fetched
// again: the fingerprint is cleared, the device is added to the self
// device's missing set and a session-reset message is appended to the
// conversation with its owner.
func (s *Service) ResetSession(ctx context.Context, device *model.Device) error {
	if device.RemoteID().IsZero() {
		return nil
	}
	err := s.queue.Perform(ctx, func(ctx context.Context, p syncctx.Privileged) error {
		return s.DeleteSession(ctx, p, device)
	})
	if err != nil {
		return fmt.Errorf("session: reset %s: %w", device.RemoteID(), err)
	}
	device.SetFingerprint(nil)
	metrics.SessionsResetTotal.Inc()

	self := s.oc.SelfDevice()
	if self == nil {
		return nil
	}
	if device != self {
		self.AddMissing(device)
		s.oc.SetLocallyModifiedKeys(self, model.KeyMissingClients)
	}

	if owner := device.User(); owner != nil {
		conv := owner.OneToOneConversation()
		if owner.IsSelf() {
			conv = s.oc.SelfConversation()
		}
		if conv != nil {
			conv.AppendSessionResetMessage(s.oc.SelfUser())
		}
	}
	return s.oc.Save(ctx)
}

// MarkForFetchingPreKeys queues a pre-key fetch for device by adding it to
// the self device's missing set. The self device's own fingerprint is read
// straight from the key store instead. Devices that already have a
// fingerprint are skipped.
func (s *Service) MarkForFetchingPreKeys(ctx context.Context, device *model.Device) error {
	if device.Fingerprint() != nil {
		return nil
	}
	self := s.oc.SelfDevice()
	if self == nil {
		return nil
	}

	if device == self || (!device.RemoteID().IsZero() && device.RemoteID() == self.RemoteID()) {
		if err := s.CacheLocalFingerprint(ctx, device); err != nil {
			return err
		}
		return s.oc.Save(ctx)
	}

	self.AddMissing(device)
	if !s.oc.HasLocalModifications(self, model.KeyMissingClients) {
		s.oc.SetLocallyModifiedKeys(self, model.KeyMissingClients)
	}
	return nil
}

// CacheLocalFingerprint stores the local identity fingerprint on device.
func (s *Service) CacheLocalFingerprint(ctx context.Context, device *model.Device) error {
	return s.queue.Perform(ctx, func(ctx context.Context, _ syncctx.Privileged) error {
		var fp []byte
		err := s.keys.PerformTransaction(ctx, func(_ context.Context, dir domain.SessionDirectory) error {
			fp = dir.LocalFingerprint()
			return nil
		})
		if err != nil {
			return fmt.Errorf("session: local fingerprint: %w", err)
		}
		if fp == nil {
			s.log.Error(ctx, "cannot fetch local fingerprint", "device", device.RemoteID())
			return nil
		}
		device.SetFingerprint(fp)
		return nil
	})
}

// DecrementRemainingKeys records that one of the self device's one-time
// pre-keys was used. A negative counter is clamped to zero. The counter is
// marked for upload unless it was already zero.
//
// Calling it for any other device panics.
func (s *Service) DecrementRemainingKeys(ctx context.Context, device *model.Device) {
	if device != s.oc.SelfDevice() {
		panic(fmt.Sprintf("session: DecrementRemainingKeys called for non-self device %s", device.RemoteID()))
	}

	before := device.KeysRemaining()
	after := before
	if after > 0 {
		after--
	}
	if after < 0 {
		s.log.Warn(ctx, "remaining pre-key counter was negative", "value", before)
		metrics.PreKeyCounterClampedTotal.Inc()
		after = 0
	}
	device.SetKeysRemaining(after)
	if before != 0 {
		s.oc.SetLocallyModifiedKeys(device, model.KeyNumberOfKeysRemaining)
	}
}

// HasSession reports whether the key store holds a session with device.
func (s *Service) HasSession(ctx context.Context, device *model.Device) bool {
	remoteID := device.RemoteID()
	if remoteID.IsZero() {
		return false
	}
	var ok bool
	err := s.queue.Perform(ctx, func(ctx context.Context, _ syncctx.Privileged) error {
		return s.keys.PerformTransaction(ctx, func(_ context.Context, dir domain.SessionDirectory) error {
			ok = dir.HasSession(remoteID)
			return nil
		})
	})
	if err != nil {
		s.log.Error(ctx, "cannot query session", "device", remoteID, "err", err)
		return false
	}
	return ok
}

// RefreshFingerprint fills in a missing cached fingerprint from the key
// store and reports whether device now has one.
func (s *Service) RefreshFingerprint(ctx context.Context, device *model.Device) (bool, error) {
	if device.Fingerprint() != nil {
		return true, nil
	}
	remoteID := device.RemoteID()
	if remoteID.IsZero() {
		return false, nil
	}
	if device == s.oc.SelfDevice() {
		if err := s.CacheLocalFingerprint(ctx, device); err != nil {
			return false, err
		}
		return device.Fingerprint() != nil, nil
	}

	var fp []byte
	err := s.queue.Perform(ctx, func(ctx context.Context, _ syncctx.Privileged) error {
		return s.keys.PerformTransaction(ctx, func(_ context.Context, dir domain.SessionDirectory) error {
			fp = dir.Fingerprint(remoteID)
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("session: refresh fingerprint: %w", err)
	}
	if fp == nil {
		return false, nil
	}
	device.SetFingerprint(fp)
	return true, nil
}

// Encrypt seals plaintext for device with its session.
func (s *Service) Encrypt(ctx context.Context, p syncctx.Privileged, device *model.Device, plaintext []byte) ([]byte, error) {
	return s.crypt(ctx, p, device, "encrypt", func(dir domain.SessionDirectory, id domain.DeviceID) ([]byte, error) {
		return dir.Encrypt(id, plaintext)
	})
}

// Decrypt opens ciphertext received from device. A failure flags the
// device's session as corrupted.
func (s *Service) Decrypt(ctx context.Context, p syncctx.Privileged, device *model.Device, ciphertext []byte) ([]byte, error) {
	return s.crypt(ctx, p, device, "decrypt", func(dir domain.SessionDirectory, id domain.DeviceID) ([]byte, error) {
		return dir.Decrypt(id, ciphertext)
	})
}

func (s *Service) crypt(
	ctx context.Context,
	p syncctx.Privileged,
	device *model.Device,
	op string,
	fn func(domain.SessionDirectory, domain.DeviceID) ([]byte, error),
) ([]byte, error) {
	p.MustBeValid()

	remoteID := device.RemoteID()
	if remoteID.IsZero() {
		return nil, ErrNoSession
	}
	var out []byte
	err := s.keys.PerformTransaction(ctx, func(_ context.Context, dir domain.SessionDirectory) error {
		if !dir.HasSession(remoteID) {
			return ErrNoSession
		}
		var err error
		out, err = fn(dir, remoteID)
		return err
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, ErrNoSession), errors.Is(err, keystore.ErrNoSession):
		return nil, ErrNoSession
	default:
		s.log.Error(ctx, "session failure", "op", op, "device", remoteID, "err", err)
		device.SetFailedToEstablishSession(true)
		metrics.SessionsCorruptedTotal.Inc()
		return nil, fmt.Errorf("%w: %s %s: %v", ErrCorrupted, op, remoteID, err)
	}
}

// ResetSignalingKeys drops the self device's signaling keys and marks them
// for regeneration and upload.
func (s *Service) ResetSignalingKeys(ctx context.Context) error {
	self := s.oc.SelfDevice()
	if self == nil {
		return nil
	}
	self.SetSignalingKeys(nil)
	self.SetNeedsToUploadSignalingKeys(true)
	s.oc.SetLocallyModifiedKeys(self, model.KeyNeedsToUploadSignalingKeys)
	return s.oc.Save(ctx)
}

// Verified reports whether device is the self device or trusted by it.
func (s *Service) Verified(device *model.Device) bool {
	self := s.oc.SelfDevice()
	if self == nil {
		return false
	}
	if device == self {
		return true
	}
	if id := device.RemoteID(); !id.IsZero() && id == self.RemoteID() {
		return true
	}
	return self.Trusts(device)
}
