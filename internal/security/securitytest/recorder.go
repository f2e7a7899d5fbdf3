// Package securitytest provides a Classifier that records what it was asked
// to do.
package securitytest

import (
	"context"
	"sync"

	"cipherclients/internal/model"
	"cipherclients/internal/security"
)

// Event is one recorded classification request. Kind is zero for
// AfterDeviceRemoved.
type Event struct {
	Kind         security.ChangeKind
	Conversation *model.Conversation
	Devices      []*model.Device
	CausedBy     *model.Message
	RemovedFrom  *model.User
}

// Recorder is a Classifier storing every call.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) AfterTrusted(_ context.Context, conv *model.Conversation, devices []*model.Device) {
	r.add(Event{Kind: security.ChangeTrusted, Conversation: conv, Devices: devices})
}

func (r *Recorder) AfterIgnored(_ context.Context, conv *model.Conversation, devices []*model.Device) {
	r.add(Event{Kind: security.ChangeIgnored, Conversation: conv, Devices: devices})
}

func (r *Recorder) AfterDiscovered(_ context.Context, conv *model.Conversation, devices []*model.Device, causedBy *model.Message) {
	r.add(Event{Kind: security.ChangeDiscovered, Conversation: conv, Devices: devices, CausedBy: causedBy})
}

func (r *Recorder) AfterDeviceRemoved(_ context.Context, conv *model.Conversation, user *model.User) {
	r.add(Event{Conversation: conv, RemovedFrom: user})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Conversations returns the conversation of each event, in order.
func (r *Recorder) Conversations() []*model.Conversation {
	var out []*model.Conversation
	for _, e := range r.Events() {
		out = append(out, e.Conversation)
	}
	return out
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var _ security.Classifier = (*Recorder)(nil)
