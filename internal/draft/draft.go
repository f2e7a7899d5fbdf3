// Package draft stores the unsent message of a conversation.
//
// Mentions are persisted by user id and resolved against the conversation's
// object context on read. Stored data that cannot be decoded is discarded.
package draft

import (
	"encoding/json"

	"github.com/google/uuid"

	"cipherclients/internal/model"
)

// Range is a span of the draft text, in characters.
type Range struct {
	Location int `json:"location"`
	Length   int `json:"length"`
}

// Mention is a reference to a user inside the draft text.
type Mention struct {
	Range Range
	User  *model.User
}

// Message is a draft.
type Message struct {
	Text     string
	Mentions []Mention
}

type storedMention struct {
	Range          Range     `json:"range"`
	UserIdentifier uuid.UUID `json:"userIdentifier"`
}

type storedMessage struct {
	Text     string          `json:"text"`
	Mentions []storedMention `json:"mentions"`
}

// Set stores msg as the draft of conv. A nil msg clears it. Mentions
// without a user are not stored.
func Set(conv *model.Conversation, msg *Message) {
	if msg == nil {
		conv.SetDraftData(nil)
		return
	}
	stored := storedMessage{Text: msg.Text, Mentions: []storedMention{}}
	for _, m := range msg.Mentions {
		if m.User == nil {
			continue
		}
		stored.Mentions = append(stored.Mentions, storedMention{Range: m.Range, UserIdentifier: m.User.ID()})
	}
	b, err := json.Marshal(stored)
	if err != nil {
		conv.SetDraftData(nil)
		return
	}
	conv.SetDraftData(b)
}

// Get returns the draft of conv, or nil when there is none. Mentions of
// users that are no longer known are dropped.
func Get(conv *model.Conversation) *Message {
	data := conv.DraftData()
	if data == nil {
		return nil
	}
	var stored storedMessage
	if err := json.Unmarshal(data, &stored); err != nil {
		conv.SetDraftData(nil)
		return nil
	}

	oc := conv.Context()
	msg := &Message{Text: stored.Text, Mentions: []Mention{}}
	for _, m := range stored.Mentions {
		u, ok := oc.User(m.UserIdentifier)
		if !ok {
			continue
		}
		msg.Mentions = append(msg.Mentions, Mention{Range: m.Range, User: u})
	}
	return msg
}
