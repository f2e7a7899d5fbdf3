package model

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cipherclients/internal/domain"
)

// ErrNotEmpty is returned by Restore on a context that already holds data.
var ErrNotEmpty = errors.New("model: restore into non-empty context")

// Snapshot is a plain copy of the graph for persistence adapters.
type Snapshot struct {
	SelfUser      uuid.UUID
	SelfDevice    ObjectID
	Users         []UserRecord
	Devices       []DeviceRecord
	Conversations []ConversationRecord
	Messages      []MessageRecord
	Relations     []RelationRecord
}

type UserRecord struct {
	ID   uuid.UUID
	Name string
}

type DeviceRecord struct {
	ObjectID                   ObjectID
	RemoteID                   domain.DeviceID
	User                       uuid.UUID
	Attributes                 Attributes
	Fingerprint                []byte
	KeysRemaining              int32
	SignalingKeys              *SignalingKeys
	NeedsToUploadSignalingKeys bool
	MarkedForDeletion          bool
	NeedsToNotifyUser          bool
	FailedToEstablishSession   bool
	Missing                    []ObjectID
	PendingMessages            []uuid.UUID
	ModifiedKeys               []string
}

type ConversationRecord struct {
	ID            uuid.UUID
	Type          ConversationType
	Name          string
	Archived      bool
	SecurityLevel SecurityLevel
	Participants  []uuid.UUID
	DraftData     []byte
}

type MessageRecord struct {
	ID           uuid.UUID
	Conversation uuid.UUID
	Kind         MessageKind
	Sender       uuid.UUID
	Text         string
	Timestamp    time.Time
}

type RelationRecord struct {
	From ObjectID
	To   ObjectID
	Kind RelationKind
}

// Snapshot copies the graph under a read lock.
func (c *ObjectContext) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Snapshot
	if c.selfUser != nil {
		s.SelfUser = c.selfUser.id
	}
	if c.selfDevice != nil {
		s.SelfDevice = c.selfDevice.objectID
	}
	for _, u := range c.userOrder {
		s.Users = append(s.Users, UserRecord{ID: u.id, Name: u.name})
	}
	for _, d := range c.devicesLocked() {
		rec := DeviceRecord{
			ObjectID:                   d.objectID,
			RemoteID:                   d.remoteID,
			Attributes:                 d.attrs,
			Fingerprint:                bytes.Clone(d.fingerprint),
			KeysRemaining:              d.keysRemaining,
			NeedsToUploadSignalingKeys: d.needsToUploadSignalingKeys,
			MarkedForDeletion:          d.markedForDeletion,
			NeedsToNotifyUser:          d.needsToNotifyUser,
			FailedToEstablishSession:   c.failed.Contains(d),
			ModifiedKeys:               c.modifiedKeysLocked(d.objectID),
		}
		if d.user != nil {
			rec.User = d.user.id
		}
		if d.signaling != nil {
			cp := *d.signaling
			rec.SignalingKeys = &cp
		}
		for _, m := range sortedDevices(d.missing) {
			rec.Missing = append(rec.Missing, m.objectID)
		}
		pending := make([]*Message, 0, len(d.pending))
		for _, m := range d.pending {
			pending = append(pending, m)
		}
		sortMessages(pending)
		for _, m := range pending {
			rec.PendingMessages = append(rec.PendingMessages, m.id)
		}
		s.Devices = append(s.Devices, rec)
	}
	for _, conv := range c.convOrder {
		rec := ConversationRecord{
			ID:            conv.id,
			Type:          conv.kind,
			Name:          conv.name,
			Archived:      conv.archived,
			SecurityLevel: conv.level,
			DraftData:     bytes.Clone(conv.draft),
		}
		for _, p := range conv.participants {
			rec.Participants = append(rec.Participants, p.id)
		}
		s.Conversations = append(s.Conversations, rec)
		for _, m := range conv.messages {
			mr := MessageRecord{
				ID:           m.id,
				Conversation: conv.id,
				Kind:         m.kind,
				Text:         m.text,
				Timestamp:    m.timestamp,
			}
			if m.sender != nil {
				mr.Sender = m.sender.id
			}
			s.Messages = append(s.Messages, mr)
		}
	}
	for _, d := range c.devicesLocked() {
		for _, kind := range []RelationKind{RelationTrusted, RelationIgnored} {
			for _, to := range c.relations.peers(d.objectID, kind, true) {
				s.Relations = append(s.Relations, RelationRecord{From: d.objectID, To: to, Kind: kind})
			}
		}
	}
	return s
}

// Restore rebuilds the graph from s. The context must be empty.
func (c *ObjectContext) Restore(s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.users) > 0 || len(c.devices) > 0 || len(c.conversations) > 0 {
		return ErrNotEmpty
	}

	for _, ur := range s.Users {
		u := &User{oc: c, id: ur.ID, name: ur.Name}
		c.users[u.id] = u
		c.userOrder = append(c.userOrder, u)
	}

	for _, dr := range s.Devices {
		var owner *User
		if dr.User != uuid.Nil {
			u, ok := c.users[dr.User]
			if !ok {
				return fmt.Errorf("model: device %s references unknown user %s", dr.ObjectID, dr.User)
			}
			owner = u
		}
		d := c.insertDeviceLocked(dr.ObjectID, owner, dr.RemoteID)
		d.attrs = dr.Attributes
		d.fingerprint = bytes.Clone(dr.Fingerprint)
		d.keysRemaining = dr.KeysRemaining
		if dr.SignalingKeys != nil {
			cp := *dr.SignalingKeys
			d.signaling = &cp
		}
		d.needsToUploadSignalingKeys = dr.NeedsToUploadSignalingKeys
		d.markedForDeletion = dr.MarkedForDeletion
		d.needsToNotifyUser = dr.NeedsToNotifyUser
		if dr.FailedToEstablishSession {
			c.failed.Add(d)
		}
		if len(dr.ModifiedKeys) > 0 {
			set := map[string]struct{}{}
			for _, k := range dr.ModifiedKeys {
				set[k] = struct{}{}
			}
			c.modified[d.objectID] = set
		}
		if dr.ObjectID > c.nextID {
			c.nextID = dr.ObjectID
		}
	}

	for _, cr := range s.Conversations {
		conv := &Conversation{
			oc:       c,
			id:       cr.ID,
			kind:     cr.Type,
			name:     cr.Name,
			archived: cr.Archived,
			level:    cr.SecurityLevel,
			draft:    bytes.Clone(cr.DraftData),
		}
		for _, id := range cr.Participants {
			if u, ok := c.users[id]; ok {
				conv.participants = append(conv.participants, u)
			}
		}
		c.conversations[conv.id] = conv
		c.convOrder = append(c.convOrder, conv)
	}

	messages := map[uuid.UUID]*Message{}
	for _, mr := range s.Messages {
		conv, ok := c.conversations[mr.Conversation]
		if !ok {
			return fmt.Errorf("model: message %s references unknown conversation %s", mr.ID, mr.Conversation)
		}
		m := &Message{
			id:           mr.ID,
			kind:         mr.Kind,
			conversation: conv,
			sender:       c.users[mr.Sender],
			text:         mr.Text,
			timestamp:    mr.Timestamp,
			seq:          len(conv.messages),
		}
		conv.messages = append(conv.messages, m)
		messages[m.id] = m
	}

	for _, dr := range s.Devices {
		d := c.devices[dr.ObjectID]
		for _, id := range dr.Missing {
			if other, ok := c.devices[id]; ok && other != d {
				d.missing[id] = other
			}
		}
		for _, id := range dr.PendingMessages {
			if m, ok := messages[id]; ok {
				d.pending[id] = m
			}
		}
	}

	for _, rr := range s.Relations {
		_, fromOK := c.devices[rr.From]
		_, toOK := c.devices[rr.To]
		if fromOK && toOK {
			c.relations.set(rr.From, rr.To, rr.Kind)
		}
	}

	if s.SelfUser != uuid.Nil {
		c.selfUser = c.users[s.SelfUser]
	}
	if s.SelfDevice != 0 {
		c.selfDevice = c.devices[s.SelfDevice]
	}
	return nil
}
