package model

import "github.com/google/uuid"

// User owns zero or more devices and participates in conversations.
type User struct {
	oc      *ObjectContext
	id      uuid.UUID
	name    string
	devices []*Device
	deleted bool
}

func (u *User) ID() uuid.UUID { return u.id }

func (u *User) Name() string {
	u.oc.mu.RLock()
	defer u.oc.mu.RUnlock()
	return u.name
}

// IsSelf reports whether u is the local user.
func (u *User) IsSelf() bool {
	u.oc.mu.RLock()
	defer u.oc.mu.RUnlock()
	return u.oc.selfUser == u
}

// IsDeleted reports whether u was removed from its context.
func (u *User) IsDeleted() bool {
	u.oc.mu.RLock()
	defer u.oc.mu.RUnlock()
	return u.deleted
}

// Devices returns u's devices in the order they were attached.
func (u *User) Devices() []*Device {
	u.oc.mu.RLock()
	defer u.oc.mu.RUnlock()
	return append([]*Device(nil), u.devices...)
}

// ActiveConversations returns the conversations u currently participates
// in, in creation order.
func (u *User) ActiveConversations() []*Conversation {
	u.oc.mu.RLock()
	defer u.oc.mu.RUnlock()
	var out []*Conversation
	for _, conv := range u.oc.convOrder {
		if conv.hasParticipantLocked(u) {
			out = append(out, conv)
		}
	}
	return out
}

// OneToOneConversation returns the one-to-one conversation with u, if any.
func (u *User) OneToOneConversation() *Conversation {
	u.oc.mu.RLock()
	defer u.oc.mu.RUnlock()
	for _, conv := range u.oc.convOrder {
		if conv.kind == ConversationOneToOne && conv.hasParticipantLocked(u) {
			return conv
		}
	}
	return nil
}
