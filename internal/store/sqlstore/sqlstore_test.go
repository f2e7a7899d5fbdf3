package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherclients/internal/model"
	"cipherclients/internal/store/sqlstore"
)

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func clock() func() time.Time {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

// normalize strips location data that SQLite does not round-trip.
func normalize(s model.Snapshot) model.Snapshot {
	for i := range s.Messages {
		s.Messages[i].Timestamp = s.Messages[i].Timestamp.UTC()
	}
	for i := range s.Devices {
		if at := s.Devices[i].Attributes.ActivationDate; at != nil {
			utc := at.UTC()
			s.Devices[i].Attributes.ActivationDate = &utc
		}
	}
	return s
}

func populate(t *testing.T, oc *model.ObjectContext) {
	t.Helper()
	me := oc.InsertUser(uuid.New(), "me")
	bob := oc.InsertUser(uuid.New(), "bob")
	oc.SetSelfUser(me)

	self := oc.InsertDevice(me, "self0001")
	oc.SetSelfDevice(self)
	self.SetKeysRemaining(42)
	self.SetSignalingKeys(&model.SignalingKeys{VerificationKey: []byte{1, 2}, DecryptionKey: []byte{3, 4}})

	phone := oc.InsertDevice(me, "phone002")
	bobDev := oc.InsertDevice(bob, "bob-dev")
	activated := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	bobDev.SetAttributes(model.Attributes{
		Type:           model.DeviceTypePermanent,
		Label:          "laptop",
		ActivationDate: &activated,
		Latitude:       52.5,
		Longitude:      13.4,
	})
	bobDev.SetFingerprint([]byte("fingerprint"))
	bobDev.SetNeedsToNotifyUser(true)
	phone.SetFailedToEstablishSession(true)

	self.AddMissing(phone)
	oc.SetLocallyModifiedKeys(self, model.KeyMissingClients, model.KeyNumberOfKeysRemaining)
	oc.SetRelation(self, []*model.Device{bobDev}, model.RelationTrusted)
	oc.SetRelation(self, []*model.Device{phone}, model.RelationIgnored)

	conv := oc.InsertConversation(uuid.New(), model.ConversationOneToOne, "")
	conv.AddParticipants(me, bob)
	conv.SetSecurityLevel(model.SecuritySecure)
	conv.SetDraftData([]byte(`{"text":"hi"}`))
	msg := conv.AppendTextMessage(me, "hello")
	conv.AppendSessionResetMessage(me)
	bobDev.AddMessageMissingRecipient(msg)

	selfConv := oc.InsertConversation(uuid.New(), model.ConversationSelf, "")
	selfConv.AddParticipants(me)
	selfConv.SetArchived(true)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	oc := model.NewObjectContext(model.WithPersister(store), model.WithClock(clock()))
	populate(t, oc)
	require.NoError(t, oc.Save(ctx))
	want := oc.Snapshot()

	loaded := model.NewObjectContext()
	require.NoError(t, store.Load(ctx, loaded))

	assert.Equal(t, normalize(want), normalize(loaded.Snapshot()))
	require.NotNil(t, loaded.SelfDevice())
	assert.Equal(t, "self0001", loaded.SelfDevice().RemoteID().String())
	assert.Len(t, loaded.FailedSessions().Devices(), 1)
}

func TestSaveReplacesPreviousGraph(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	oc := model.NewObjectContext(model.WithPersister(store), model.WithClock(clock()))
	populate(t, oc)
	require.NoError(t, oc.Save(ctx))

	for _, d := range oc.Devices() {
		if !d.IsSelf() {
			oc.DeleteDevice(d)
		}
	}
	require.NoError(t, oc.Save(ctx))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Devices, 1)
	assert.Empty(t, snap.Relations)
	assert.Empty(t, snap.Devices[0].Missing)
}

func TestLoadEmptyDatabase(t *testing.T) {
	store := openStore(t)
	oc := model.NewObjectContext()

	require.NoError(t, store.Load(context.Background(), oc))
	assert.Nil(t, oc.SelfDevice())
	assert.Empty(t, oc.Devices())
}

func TestLoadIntoNonEmptyContext(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	src := model.NewObjectContext(model.WithPersister(store))
	populate(t, src)
	require.NoError(t, src.Save(ctx))

	dst := model.NewObjectContext()
	dst.InsertUser(uuid.New(), "someone")
	assert.ErrorIs(t, store.Load(ctx, dst), model.ErrNotEmpty)
}

func TestLoadRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Save(ctx, model.Snapshot{}))
	require.NoError(t, store.DB.Exec("UPDATE meta SET schema_version = ?", sqlstore.SchemaVersion+1).Error)

	_, err := store.Snapshot(ctx)
	assert.ErrorIs(t, err, sqlstore.ErrNewerSchema)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "objects.db")

	first, err := sqlstore.Open(path)
	require.NoError(t, err)
	oc := model.NewObjectContext(model.WithPersister(first), model.WithClock(clock()))
	populate(t, oc)
	require.NoError(t, oc.Save(ctx))
	want := oc.Snapshot()
	require.NoError(t, first.Close())

	second, err := sqlstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	got, err := second.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, normalize(want), normalize(got))
}
