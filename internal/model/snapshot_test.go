package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherclients/internal/model"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	oc := model.NewObjectContext(model.WithClock(func() time.Time { return fixed }))
	self := oc.InsertUser(uuid.New(), "me")
	selfDev := oc.InsertDevice(self, "self0001")
	oc.SetSelfDevice(selfDev)
	selfDev.SetKeysRemaining(7)
	selfDev.SetSignalingKeys(&model.SignalingKeys{VerificationKey: []byte{1}, DecryptionKey: []byte{2}})
	oc.SetLocallyModifiedKeys(selfDev, model.KeyNumberOfKeysRemaining)

	x := oc.InsertUser(uuid.New(), "x")
	xDev := oc.InsertDevice(x, "x0001")
	xDev.SetAttributes(model.Attributes{Type: model.DeviceTypePermanent, Label: "phone", ActivationDate: &fixed})
	xDev.SetFingerprint([]byte("fp"))
	xDev.SetFailedToEstablishSession(true)
	detached := oc.InsertDevice(nil, "")
	oc.SetRelation(selfDev, []*model.Device{xDev}, model.RelationTrusted)
	oc.SetRelation(selfDev, []*model.Device{detached}, model.RelationIgnored)
	selfDev.AddMissing(xDev)

	conv := oc.InsertConversation(uuid.New(), model.ConversationOneToOne, "x")
	conv.AddParticipants(self, x)
	conv.SetSecurityLevel(model.SecuritySecure)
	conv.SetDraftData([]byte(`{"text":"hi"}`))
	msg := conv.AppendTextMessage(x, "yo")
	xDev.AddMessageMissingRecipient(msg)

	snap := oc.Snapshot()

	restored := model.NewObjectContext()
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap, restored.Snapshot())

	rSelf := restored.SelfDevice()
	require.NotNil(t, rSelf)
	assert.Equal(t, selfDev.ObjectID(), rSelf.ObjectID())
	assert.Equal(t, int32(7), rSelf.KeysRemaining())

	rx, ok := restored.DeviceByRemoteID("x0001")
	require.True(t, ok)
	assert.True(t, rSelf.Trusts(rx))
	assert.True(t, rx.FailedToEstablishSession())
	assert.True(t, rSelf.IsMissing(rx))
	require.Len(t, rx.MessagesMissingRecipient(), 1)
	assert.Equal(t, msg.ID(), rx.MessagesMissingRecipient()[0].ID())

	next := restored.InsertDevice(nil, "new")
	assert.Greater(t, uint64(next.ObjectID()), uint64(detached.ObjectID()))
}

func TestRestoreRejectsNonEmptyContext(t *testing.T) {
	oc := model.NewObjectContext()
	oc.InsertUser(uuid.New(), "")
	assert.ErrorIs(t, oc.Restore(model.Snapshot{}), model.ErrNotEmpty)
}

func TestRestoreRejectsDanglingOwner(t *testing.T) {
	oc := model.NewObjectContext()
	err := oc.Restore(model.Snapshot{Devices: []model.DeviceRecord{{ObjectID: 1, User: uuid.New()}}})
	assert.Error(t, err)
}
