package model

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"cipherclients/internal/domain"
)

// DeviceType mirrors the backend's device class: permanent devices keep
// their keys, temporary ones are wiped on logout.
type DeviceType string

const (
	DeviceTypePermanent DeviceType = "permanent"
	DeviceTypeTemporary DeviceType = "temporary"
	DeviceTypeLegalHold DeviceType = "legalhold"
)

// Attributes are the descriptive fields reported by the backend.
type Attributes struct {
	Type              DeviceType
	Label             string
	Model             string
	Class             string
	ActivationAddress string
	ActivationDate    *time.Time
	Latitude          float64
	Longitude         float64
}

// SignalingKeys are the keys used to authenticate push notifications.
type SignalingKeys struct {
	VerificationKey []byte
	DecryptionKey   []byte
}

// Device is one endpoint of a user.
type Device struct {
	oc       *ObjectContext
	objectID ObjectID
	remoteID domain.DeviceID
	user     *User
	deleted  bool

	attrs         Attributes
	fingerprint   []byte
	keysRemaining int32
	signaling     *SignalingKeys

	needsToUploadSignalingKeys bool
	markedForDeletion          bool
	needsToNotifyUser          bool

	missing map[ObjectID]*Device
	pending map[uuid.UUID]*Message
}

func (d *Device) ObjectID() ObjectID { return d.objectID }

// Context returns the owning object context.
func (d *Device) Context() *ObjectContext { return d.oc }

func (d *Device) RemoteID() domain.DeviceID {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.remoteID
}

func (d *Device) SetRemoteID(id domain.DeviceID) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	d.remoteID = id
}

// User returns the owner, or nil for a detached device.
func (d *Device) User() *User {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.user
}

// SetUser moves d to u. A nil u detaches it.
func (d *Device) SetUser(u *User) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	if d.user == u {
		return
	}
	if d.user != nil {
		d.user.devices = removeFrom(d.user.devices, d)
	}
	d.user = u
	if u != nil {
		u.devices = append(u.devices, d)
	}
}

// IsSelf reports whether d is the local device.
func (d *Device) IsSelf() bool {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.oc.selfDevice == d
}

func (d *Device) IsDeleted() bool {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.deleted
}

func (d *Device) Attributes() Attributes {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.attrs
}

func (d *Device) SetAttributes(a Attributes) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	d.attrs = a
}

// Fingerprint returns a copy of the cached remote fingerprint, or nil.
func (d *Device) Fingerprint() []byte {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return bytes.Clone(d.fingerprint)
}

func (d *Device) SetFingerprint(fp []byte) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	d.fingerprint = bytes.Clone(fp)
}

// KeysRemaining is the number of one-time pre-keys believed to remain on
// the backend. Only meaningful for the self device.
func (d *Device) KeysRemaining() int32 {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.keysRemaining
}

func (d *Device) SetKeysRemaining(n int32) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	d.keysRemaining = n
}

func (d *Device) SignalingKeys() *SignalingKeys {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	if d.signaling == nil {
		return nil
	}
	cp := *d.signaling
	return &cp
}

func (d *Device) SetSignalingKeys(k *SignalingKeys) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	if k == nil {
		d.signaling = nil
		return
	}
	cp := *k
	d.signaling = &cp
}

func (d *Device) NeedsToUploadSignalingKeys() bool {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.needsToUploadSignalingKeys
}

func (d *Device) SetNeedsToUploadSignalingKeys(v bool) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	d.needsToUploadSignalingKeys = v
}

func (d *Device) MarkedForDeletion() bool {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.markedForDeletion
}

func (d *Device) SetMarkedForDeletion(v bool) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	d.markedForDeletion = v
}

// NeedsToNotifyUser is set for devices the user has not acknowledged yet.
func (d *Device) NeedsToNotifyUser() bool {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.needsToNotifyUser
}

func (d *Device) SetNeedsToNotifyUser(v bool) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	d.needsToNotifyUser = v
}

// FailedToEstablishSession reports membership in the failed-session set.
func (d *Device) FailedToEstablishSession() bool {
	return d.oc.failed.Contains(d)
}

// SetFailedToEstablishSession adds d to or removes it from the
// failed-session set.
func (d *Device) SetFailedToEstablishSession(v bool) {
	if v {
		d.oc.failed.Add(d)
		return
	}
	d.oc.failed.Remove(d)
}

// Missing returns the devices d has no session with yet, by local id.
func (d *Device) Missing() []*Device {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return sortedDevices(d.missing)
}

// AddMissing records devices d still needs a session with. d itself and
// deleted devices are ignored.
func (d *Device) AddMissing(devices ...*Device) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	for _, other := range devices {
		if other == d || other.deleted {
			continue
		}
		d.missing[other.objectID] = other
	}
}

func (d *Device) RemoveMissing(devices ...*Device) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	for _, other := range devices {
		delete(d.missing, other.objectID)
	}
}

// IsMissing reports whether other is in d's missing set.
func (d *Device) IsMissing(other *Device) bool {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.missing[other.objectID] == other
}

// MessagesMissingRecipient returns messages that could not be delivered to
// d because it had no session.
func (d *Device) MessagesMissingRecipient() []*Message {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	out := make([]*Message, 0, len(d.pending))
	for _, m := range d.pending {
		out = append(out, m)
	}
	sortMessages(out)
	return out
}

func (d *Device) AddMessageMissingRecipient(m *Message) {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	d.pending[m.id] = m
}

// TakeMessagesMissingRecipient empties the pending set and returns it. The
// caller owns the returned messages and must resend them; they are no
// longer tracked on d.
func (d *Device) TakeMessagesMissingRecipient() []*Message {
	d.oc.mu.Lock()
	defer d.oc.mu.Unlock()
	out := make([]*Message, 0, len(d.pending))
	for _, m := range d.pending {
		out = append(out, m)
	}
	d.pending = map[uuid.UUID]*Message{}
	sortMessages(out)
	return out
}

// Trusts reports whether d trusts other.
func (d *Device) Trusts(other *Device) bool {
	return d.relationTo(other) == RelationTrusted
}

// Ignores reports whether d ignores other.
func (d *Device) Ignores(other *Device) bool {
	return d.relationTo(other) == RelationIgnored
}

func (d *Device) relationTo(other *Device) RelationKind {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	return d.oc.relations.get(d.objectID, other.objectID)
}

// TrustedDevices returns the devices d trusts.
func (d *Device) TrustedDevices() []*Device { return d.peers(RelationTrusted, true) }

// IgnoredDevices returns the devices d ignores.
func (d *Device) IgnoredDevices() []*Device { return d.peers(RelationIgnored, true) }

// TrustedBy returns the devices that trust d.
func (d *Device) TrustedBy() []*Device { return d.peers(RelationTrusted, false) }

// IgnoredBy returns the devices that ignore d.
func (d *Device) IgnoredBy() []*Device { return d.peers(RelationIgnored, false) }

func (d *Device) peers(kind RelationKind, outgoing bool) []*Device {
	d.oc.mu.RLock()
	defer d.oc.mu.RUnlock()
	ids := d.oc.relations.peers(d.objectID, kind, outgoing)
	out := make([]*Device, 0, len(ids))
	for _, id := range ids {
		if other, ok := d.oc.devices[id]; ok {
			out = append(out, other)
		}
	}
	return out
}
