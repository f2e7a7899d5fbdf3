package model

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

type ConversationType uint8

const (
	ConversationGroup ConversationType = iota
	ConversationSelf
	ConversationOneToOne
	// ConversationConnection is a pending connection request.
	ConversationConnection
)

func (t ConversationType) String() string {
	switch t {
	case ConversationSelf:
		return "self"
	case ConversationOneToOne:
		return "oneToOne"
	case ConversationConnection:
		return "connection"
	default:
		return "group"
	}
}

// SecurityLevel is the verification state shown for a conversation.
type SecurityLevel uint8

const (
	SecurityNotSecure SecurityLevel = iota
	SecuritySecure
	// SecuritySecureWithIgnored means the conversation was secure until a
	// participant device was ignored or newly discovered.
	SecuritySecureWithIgnored
)

func (l SecurityLevel) String() string {
	switch l {
	case SecuritySecure:
		return "secure"
	case SecuritySecureWithIgnored:
		return "secureWithIgnored"
	default:
		return "notSecure"
	}
}

// Conversation groups users exchanging messages.
type Conversation struct {
	oc           *ObjectContext
	id           uuid.UUID
	kind         ConversationType
	name         string
	archived     bool
	participants []*User
	level        SecurityLevel
	messages     []*Message
	draft        []byte
}

func (c *Conversation) ID() uuid.UUID { return c.id }

func (c *Conversation) Type() ConversationType { return c.kind }

// Context returns the owning object context.
func (c *Conversation) Context() *ObjectContext { return c.oc }

func (c *Conversation) Name() string {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	return c.name
}

func (c *Conversation) IsArchived() bool {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	return c.archived
}

func (c *Conversation) SetArchived(v bool) {
	c.oc.mu.Lock()
	defer c.oc.mu.Unlock()
	c.archived = v
}

// IsReadOnly reports whether the local user can no longer post: pending
// connections, and conversations the self user is not a participant of.
func (c *Conversation) IsReadOnly() bool {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	if c.kind == ConversationConnection {
		return true
	}
	self := c.oc.selfUser
	return self != nil && !c.hasParticipantLocked(self)
}

// Participants returns the active participants in join order.
func (c *Conversation) Participants() []*User {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	return append([]*User(nil), c.participants...)
}

func (c *Conversation) IsParticipant(u *User) bool {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	return c.hasParticipantLocked(u)
}

func (c *Conversation) hasParticipantLocked(u *User) bool {
	for _, p := range c.participants {
		if p == u {
			return true
		}
	}
	return false
}

func (c *Conversation) AddParticipants(users ...*User) {
	c.oc.mu.Lock()
	defer c.oc.mu.Unlock()
	for _, u := range users {
		if u.deleted || c.hasParticipantLocked(u) {
			continue
		}
		c.participants = append(c.participants, u)
	}
}

func (c *Conversation) RemoveParticipant(u *User) {
	c.oc.mu.Lock()
	defer c.oc.mu.Unlock()
	c.removeParticipantLocked(u)
}

func (c *Conversation) removeParticipantLocked(u *User) {
	c.participants = removeFrom(c.participants, u)
}

func (c *Conversation) SecurityLevel() SecurityLevel {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	return c.level
}

func (c *Conversation) SetSecurityLevel(l SecurityLevel) {
	c.oc.mu.Lock()
	defer c.oc.mu.Unlock()
	c.level = l
}

// Messages returns the conversation's messages in append order.
func (c *Conversation) Messages() []*Message {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	return append([]*Message(nil), c.messages...)
}

// AppendTextMessage appends a text message from sender.
func (c *Conversation) AppendTextMessage(sender *User, text string) *Message {
	return c.appendMessage(MessageText, sender, text)
}

// AppendSessionResetMessage appends the system message recording that the
// local user reset a session.
func (c *Conversation) AppendSessionResetMessage(sender *User) *Message {
	return c.appendMessage(MessageSessionReset, sender, "")
}

// AppendNewDeviceMessage appends the system message announcing devices
// discovered in the conversation.
func (c *Conversation) AppendNewDeviceMessage(sender *User) *Message {
	return c.appendMessage(MessageNewDevice, sender, "")
}

func (c *Conversation) appendMessage(kind MessageKind, sender *User, text string) *Message {
	c.oc.mu.Lock()
	defer c.oc.mu.Unlock()
	m := &Message{
		id:           uuid.New(),
		kind:         kind,
		conversation: c,
		sender:       sender,
		text:         text,
		timestamp:    c.oc.now().UTC(),
		seq:          len(c.messages),
	}
	c.messages = append(c.messages, m)
	return m
}

// DraftData returns the encoded draft, or nil.
func (c *Conversation) DraftData() []byte {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	return bytes.Clone(c.draft)
}

func (c *Conversation) SetDraftData(b []byte) {
	c.oc.mu.Lock()
	defer c.oc.mu.Unlock()
	c.draft = bytes.Clone(b)
}

// LastModified returns the timestamp of the newest message, or the zero
// time for an empty conversation.
func (c *Conversation) LastModified() time.Time {
	c.oc.mu.RLock()
	defer c.oc.mu.RUnlock()
	if len(c.messages) == 0 {
		return time.Time{}
	}
	return c.messages[len(c.messages)-1].timestamp
}
