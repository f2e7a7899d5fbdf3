package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cipherclients/internal/domain"
)

// ErrContextClosed is returned by Save after Close.
var ErrContextClosed = errors.New("model: object context closed")

// Persister writes the whole graph of an ObjectContext.
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
}

// ObjectContext is the unit of work owning one object graph.
type ObjectContext struct {
	mu sync.RWMutex

	nextID        ObjectID
	users         map[uuid.UUID]*User
	userOrder     []*User
	devices       map[ObjectID]*Device
	conversations map[uuid.UUID]*Conversation
	convOrder     []*Conversation
	relations     *relationGraph
	modified      map[ObjectID]map[string]struct{}

	selfUser   *User
	selfDevice *Device

	failed    *FailedSessionSet
	persister Persister
	now       func() time.Time
	closed    bool
}

// Option configures an ObjectContext.
type Option func(*ObjectContext)

// WithPersister makes Save write through p.
func WithPersister(p Persister) Option {
	return func(c *ObjectContext) { c.persister = p }
}

// WithClock overrides the clock used to timestamp messages.
func WithClock(now func() time.Time) Option {
	return func(c *ObjectContext) { c.now = now }
}

// NewObjectContext returns an empty graph. The failed-session set is created
// here and torn down by Close.
func NewObjectContext(opts ...Option) *ObjectContext {
	c := &ObjectContext{
		users:         map[uuid.UUID]*User{},
		devices:       map[ObjectID]*Device{},
		conversations: map[uuid.UUID]*Conversation{},
		relations:     newRelationGraph(),
		modified:      map[ObjectID]map[string]struct{}{},
		failed:        newFailedSessionSet(),
		now:           time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Save persists the graph when a Persister is configured.
func (c *ObjectContext) Save(ctx context.Context) error {
	c.mu.RLock()
	closed, p := c.closed, c.persister
	c.mu.RUnlock()

	if closed {
		return ErrContextClosed
	}
	if p == nil {
		return nil
	}
	if err := p.Save(ctx, c.Snapshot()); err != nil {
		return fmt.Errorf("model: save: %w", err)
	}
	return nil
}

// Close tears down the failed-session set. Later calls are no-ops.
func (c *ObjectContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.failed.close()
	return nil
}

// FailedSessions exposes the set of devices with corrupted sessions.
func (c *ObjectContext) FailedSessions() *FailedSessionSet { return c.failed }

// SelfUser returns the local user, or nil before it is set.
func (c *ObjectContext) SelfUser() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfUser
}

// SelfDevice returns the local device, or nil before it is set.
func (c *ObjectContext) SelfDevice() *Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfDevice
}

// SetSelfUser marks u as the local user.
func (c *ObjectContext) SetSelfUser(u *User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfUser = u
}

// SetSelfDevice marks d as the local device. d's owner becomes the self user
// when none is set yet.
func (c *ObjectContext) SetSelfDevice(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfDevice = d
	if c.selfUser == nil && d != nil {
		c.selfUser = d.user
	}
}

// InsertUser returns the user with id, creating it when unknown.
func (c *ObjectContext) InsertUser(id uuid.UUID, name string) *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[id]; ok {
		if name != "" {
			u.name = name
		}
		return u
	}
	u := &User{oc: c, id: id, name: name}
	c.users[id] = u
	c.userOrder = append(c.userOrder, u)
	return u
}

// User looks up a user by identifier.
func (c *ObjectContext) User(id uuid.UUID) (*User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

// Users returns all users in insertion order.
func (c *ObjectContext) Users() []*User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*User(nil), c.userOrder...)
}

// DeleteUser removes u from the graph. Its devices are detached and its
// conversation memberships dropped.
func (c *ObjectContext) DeleteUser(u *User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.users[u.id] != u {
		return
	}
	for _, d := range u.devices {
		d.user = nil
	}
	u.devices = nil
	for _, conv := range c.convOrder {
		conv.removeParticipantLocked(u)
	}
	delete(c.users, u.id)
	c.userOrder = removeFrom(c.userOrder, u)
	if c.selfUser == u {
		c.selfUser = nil
	}
	u.deleted = true
}

// InsertDevice creates a device owned by user (which may be nil) with the
// given remote identifier (which may be empty).
func (c *ObjectContext) InsertDevice(user *User, remoteID domain.DeviceID) *Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.insertDeviceLocked(c.nextID, user, remoteID)
}

func (c *ObjectContext) insertDeviceLocked(id ObjectID, user *User, remoteID domain.DeviceID) *Device {
	d := &Device{
		oc:       c,
		objectID: id,
		remoteID: remoteID,
		missing:  map[ObjectID]*Device{},
		pending:  map[uuid.UUID]*Message{},
	}
	c.devices[id] = d
	if user != nil {
		d.user = user
		user.devices = append(user.devices, d)
	}
	return d
}

// Device looks up a device by local identifier.
func (c *ObjectContext) Device(id ObjectID) (*Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[id]
	return d, ok
}

// DeviceByRemoteID returns the first device, in local order, carrying the
// remote identifier.
func (c *ObjectContext) DeviceByRemoteID(id domain.DeviceID) (*Device, bool) {
	if id.IsZero() {
		return nil, false
	}
	for _, d := range c.Devices() {
		if d.RemoteID() == id {
			return d, true
		}
	}
	return nil, false
}

// Devices returns every device ordered by local identifier.
func (c *ObjectContext) Devices() []*Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devicesLocked()
}

func (c *ObjectContext) devicesLocked() []*Device {
	out := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].objectID < out[j].objectID })
	return out
}

// DeleteDevice removes d and every reference to it: trust relations,
// missing sets, the failed-session set and pending modifications.
func (c *ObjectContext) DeleteDevice(d *Device) {
	c.failed.Remove(d)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.devices[d.objectID] != d {
		return
	}
	if d.user != nil {
		d.user.devices = removeFrom(d.user.devices, d)
		d.user = nil
	}
	c.relations.removeAll(d.objectID)
	for _, other := range c.devices {
		delete(other.missing, d.objectID)
	}
	delete(c.modified, d.objectID)
	delete(c.devices, d.objectID)
	if c.selfDevice == d {
		c.selfDevice = nil
	}
	d.deleted = true
}

// InsertConversation returns the conversation with id, creating it when
// unknown.
func (c *ObjectContext) InsertConversation(id uuid.UUID, kind ConversationType, name string) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.conversations[id]; ok {
		return conv
	}
	conv := &Conversation{oc: c, id: id, kind: kind, name: name}
	c.conversations[id] = conv
	c.convOrder = append(c.convOrder, conv)
	return conv
}

// Conversation looks up a conversation by identifier.
func (c *ObjectContext) Conversation(id uuid.UUID) (*Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.conversations[id]
	return conv, ok
}

// Conversations returns every conversation, archived ones included, in
// creation order.
func (c *ObjectContext) Conversations() []*Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Conversation(nil), c.convOrder...)
}

// SelfConversation returns the conversation of type ConversationSelf, if any.
func (c *ObjectContext) SelfConversation() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conv := range c.convOrder {
		if conv.kind == ConversationSelf {
			return conv
		}
	}
	return nil
}

// ConversationsAffectedBy returns, without duplicates and in first-seen
// order, the conversations touched by a change to devices: every
// conversation, archived ones included, when a device belongs to the self
// user, the owner's active conversations otherwise. Detached devices
// contribute nothing.
func (c *ObjectContext) ConversationsAffectedBy(devices []*Device) []*Conversation {
	seenOwner := map[*User]bool{}
	seenConv := map[*Conversation]bool{}
	var out []*Conversation

	add := func(convs []*Conversation) {
		for _, conv := range convs {
			if !seenConv[conv] {
				seenConv[conv] = true
				out = append(out, conv)
			}
		}
	}
	for _, d := range devices {
		owner := d.User()
		if owner == nil || seenOwner[owner] {
			continue
		}
		seenOwner[owner] = true
		if owner.IsSelf() {
			add(c.Conversations())
		} else {
			add(owner.ActiveConversations())
		}
	}
	return out
}

// SetLocallyModifiedKeys adds keys to d's pending modifications. The set
// only grows until ResetLocallyModifiedKeys.
func (c *ObjectContext) SetLocallyModifiedKeys(d *Device, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.deleted {
		return
	}
	set, ok := c.modified[d.objectID]
	if !ok {
		set = map[string]struct{}{}
		c.modified[d.objectID] = set
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
}

// HasLocalModifications reports whether key is pending for d.
func (c *ObjectContext) HasLocalModifications(d *Device, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.modified[d.objectID][key]
	return ok
}

// LocallyModifiedKeys returns d's pending keys, sorted.
func (c *ObjectContext) LocallyModifiedKeys(d *Device) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modifiedKeysLocked(d.objectID)
}

func (c *ObjectContext) modifiedKeysLocked(id ObjectID) []string {
	set := c.modified[id]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResetLocallyModifiedKeys clears keys once they were uploaded.
func (c *ObjectContext) ResetLocallyModifiedKeys(d *Device, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.modified[d.objectID]
	for _, k := range keys {
		delete(set, k)
	}
	if len(set) == 0 {
		delete(c.modified, d.objectID)
	}
}

// DevicesWithLocalModifications returns devices with pending keys.
func (c *ObjectContext) DevicesWithLocalModifications() []*Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Device
	for _, d := range c.devicesLocked() {
		if len(c.modified[d.objectID]) > 0 {
			out = append(out, d)
		}
	}
	return out
}

func removeFrom[T comparable](s []T, v T) []T {
	out := s[:0]
	for _, e := range s {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}
