package registry

import (
	"context"
	"fmt"

	"cipherclients/internal/domain"
	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/observability/metrics"
	"cipherclients/internal/security"
	"cipherclients/internal/syncctx"
)

// Sessions is the part of the session service the registry drives.
type Sessions interface {
	MarkForFetchingPreKeys(ctx context.Context, device *model.Device) error
	CacheLocalFingerprint(ctx context.Context, device *model.Device) error
	DeleteSession(ctx context.Context, p syncctx.Privileged, device *model.Device) error
}

// Registry creates, updates and removes devices of an object context.
type Registry struct {
	oc         *model.ObjectContext
	sessions   Sessions
	classifier security.Classifier
	log        logging.Logger
}

func New(oc *model.ObjectContext, sessions Sessions, classifier security.Classifier, log logging.Logger) *Registry {
	return &Registry{
		oc:         oc,
		sessions:   sessions,
		classifier: classifier,
		log:        log.With("component", "registry"),
	}
}

// Upsert returns the device of user described by payload, creating it on
// first sighting. Delivering the same payload again only refreshes the
// attributes.
//
// A newly created device of the self user is queued for a pre-key fetch
// and flagged for user notification when it was activated after the self
// device. A device carrying the self device's remote identifier gets the
// local fingerprint.
func (r *Registry) Upsert(ctx context.Context, user *model.User, payload DevicePayload) (*model.Device, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: no owner for %s", ErrInvalidPayload, payload.ID)
	}

	device, created := r.fetch(user, payload.ID, true)
	device.SetAttributes(payload.attributes())

	self := r.oc.SelfDevice()
	if created && self != nil && device != self && user == self.User() {
		if device.Fingerprint() == nil {
			if err := r.sessions.MarkForFetchingPreKeys(ctx, device); err != nil {
				return device, err
			}
		}
		if activatedAfter(device, self) {
			device.SetNeedsToNotifyUser(true)
		}
		r.log.Info(ctx, "new device for self user", "device", payload.ID)
	}
	if self != nil && device.RemoteID() == self.RemoteID() && device.Fingerprint() == nil {
		if err := r.sessions.CacheLocalFingerprint(ctx, device); err != nil {
			return device, err
		}
	}
	return device, r.oc.Save(ctx)
}

// Fetch looks up the device of user with the remote id. When create is set
// a missing device is inserted.
func (r *Registry) Fetch(user *model.User, remoteID domain.DeviceID, create bool) *model.Device {
	d, _ := r.fetch(user, remoteID, create)
	return d
}

func (r *Registry) fetch(user *model.User, remoteID domain.DeviceID, create bool) (*model.Device, bool) {
	for _, d := range user.Devices() {
		if d.RemoteID() == remoteID {
			return d, false
		}
	}
	if !create {
		return nil, false
	}
	return r.oc.InsertDevice(user, remoteID), true
}

// MarkForDeletion flags one of the self user's other devices for removal
// on the backend. Passing the self device or another user's device panics.
func (r *Registry) MarkForDeletion(device *model.Device) {
	self := r.oc.SelfDevice()
	switch {
	case device == self:
		panic("registry: cannot mark the self device for deletion")
	case self == nil || device.User() == nil || device.User() != self.User():
		panic(fmt.Sprintf("registry: device %s does not belong to the self user", device.RemoteID()))
	}
	device.SetMarkedForDeletion(true)
	r.oc.SetLocallyModifiedKeys(device, model.KeyMarkedForDeletion)
}

// DeleteAndEndSession ends the session with device, removes it from the
// object context and re-evaluates the conversations its owner was part of.
func (r *Registry) DeleteAndEndSession(ctx context.Context, p syncctx.Privileged, device *model.Device) error {
	p.MustBeValid()
	if device.IsSelf() {
		panic("registry: cannot delete the self device")
	}
	if device.IsDeleted() {
		return nil
	}

	owner := device.User()
	conversations := r.oc.ConversationsAffectedBy([]*model.Device{device})

	remoteID := device.RemoteID()
	device.SetFailedToEstablishSession(false)
	device.SetUser(nil)
	if err := r.sessions.DeleteSession(ctx, p, device); err != nil {
		device.SetUser(owner)
		return fmt.Errorf("registry: end session with %s: %w", remoteID, err)
	}
	r.oc.DeleteDevice(device)
	metrics.DevicesDeletedTotal.Inc()
	r.log.Info(ctx, "device deleted", "device", remoteID, "conversations", len(conversations))

	if owner != nil {
		for _, conv := range conversations {
			r.classifier.AfterDeviceRemoved(ctx, conv, owner)
		}
	}
	return r.oc.Save(ctx)
}

// DevicesNeedingAttention returns the devices whose sessions are corrupted.
func (r *Registry) DevicesNeedingAttention() []*model.Device {
	return r.oc.FailedSessions().Devices()
}

func activatedAfter(device, self *model.Device) bool {
	a, b := device.Attributes().ActivationDate, self.Attributes().ActivationDate
	return a != nil && b != nil && a.After(*b)
}
