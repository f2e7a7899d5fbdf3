package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type MessageKind uint8

const (
	MessageText MessageKind = iota
	MessageSessionReset
	MessageNewDevice
)

func (k MessageKind) String() string {
	switch k {
	case MessageSessionReset:
		return "sessionReset"
	case MessageNewDevice:
		return "newDevice"
	default:
		return "text"
	}
}

// Message is immutable once appended.
type Message struct {
	id           uuid.UUID
	kind         MessageKind
	conversation *Conversation
	sender       *User
	text         string
	timestamp    time.Time
	seq          int
}

func (m *Message) ID() uuid.UUID { return m.id }
func (m *Message) Kind() MessageKind { return m.kind }
func (m *Message) Conversation() *Conversation { return m.conversation }
func (m *Message) Sender() *User { return m.sender }
func (m *Message) Text() string { return m.text }
func (m *Message) Timestamp() time.Time { return m.timestamp }

func sortMessages(ms []*Message) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].timestamp.Equal(ms[j].timestamp) {
			return ms[i].timestamp.Before(ms[j].timestamp)
		}
		return ms[i].seq < ms[j].seq
	})
}
