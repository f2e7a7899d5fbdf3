package session_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherclients/internal/crypto"
	"cipherclients/internal/domain"
	"cipherclients/internal/keystore/keystoretest"
	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/services/session"
	"cipherclients/internal/syncctx"
)

type fixture struct {
	oc       *model.ObjectContext
	selfUser *model.User
	self     *model.Device
	local    domain.Identity
	queue    *syncctx.Queue
	svc      *session.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	oc := model.NewObjectContext()
	t.Cleanup(func() { _ = oc.Close() })
	selfUser := oc.InsertUser(uuid.New(), "me")
	self := oc.InsertDevice(selfUser, "self0001")
	oc.SetSelfDevice(self)

	keys, local := keystoretest.New(t)
	queue := syncctx.NewQueue()
	t.Cleanup(queue.Close)

	return fixture{
		oc:       oc,
		selfUser: selfUser,
		self:     self,
		local:    local,
		queue:    queue,
		svc:      session.New(oc, keys, queue, logging.Discard()),
	}
}

func (f fixture) privileged(t *testing.T, fn func(ctx context.Context, p syncctx.Privileged)) {
	t.Helper()
	require.NoError(t, f.queue.Perform(context.Background(), func(ctx context.Context, p syncctx.Privileged) error {
		fn(ctx, p)
		return nil
	}))
}

func (f fixture) establish(t *testing.T, d *model.Device, bundle domain.PreKeyBundle) bool {
	t.Helper()
	var ok bool
	f.privileged(t, func(ctx context.Context, p syncctx.Privileged) {
		ok = f.svc.EstablishSession(ctx, p, d, bundle)
	})
	return ok
}

func (f fixture) remote(t *testing.T, name string) (*model.Device, keystoretest.Peer) {
	t.Helper()
	owner := f.oc.InsertUser(uuid.New(), name)
	peer := keystoretest.NewPeer(t, domain.DeviceID(name+"-dev"))
	return f.oc.InsertDevice(owner, peer.ID), peer
}

func TestEstablishSession_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev, peer := f.remote(t, "bob")
	f.self.AddMissing(dev)
	dev.SetFailedToEstablishSession(true)
	conv := f.oc.InsertConversation(uuid.New(), model.ConversationOneToOne, "bob")
	queued := conv.AppendTextMessage(f.selfUser, "queued")
	dev.AddMessageMissingRecipient(queued)

	require.True(t, f.establish(t, dev, peer.Bundle(t)))

	assert.Equal(t, peer.Fingerprint(), dev.Fingerprint())
	assert.True(t, f.svc.HasSession(ctx, dev))
	assert.False(t, dev.FailedToEstablishSession())
	assert.False(t, f.self.IsMissing(dev))

	// Still queued for the sender to resend.
	assert.Equal(t, []*model.Message{queued}, dev.MessagesMissingRecipient())
	assert.Equal(t, []*model.Message{queued}, dev.TakeMessagesMissingRecipient())
	assert.Empty(t, dev.MessagesMissingRecipient())
}

func TestEstablishSession_CryptoFailureLeavesNoSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev, peer := f.remote(t, "bob")

	require.True(t, f.establish(t, dev, peer.Bundle(t)))
	require.True(t, f.svc.HasSession(ctx, dev))

	assert.False(t, f.establish(t, dev, peer.CorruptBundle(t)))
	assert.False(t, f.svc.HasSession(ctx, dev))
	assert.True(t, dev.FailedToEstablishSession())

	require.True(t, f.establish(t, dev, peer.Bundle(t)))
	assert.False(t, dev.FailedToEstablishSession())
}

func TestEstablishSession_Preconditions(t *testing.T) {
	f := newFixture(t)
	peer := keystoretest.NewPeer(t, "anon")

	assert.False(t, f.establish(t, f.self, peer.Bundle(t)))

	unregistered := f.oc.InsertDevice(nil, "")
	assert.False(t, f.establish(t, unregistered, peer.Bundle(t)))

	assert.Panics(t, func() {
		f.svc.EstablishSession(context.Background(), syncctx.Privileged{}, unregistered, peer.Bundle(t))
	})
}

func TestEstablishSession_WithoutSelfDevice(t *testing.T) {
	oc := model.NewObjectContext()
	keys, _ := keystoretest.New(t)
	q := syncctx.NewQueue()
	t.Cleanup(q.Close)
	svc := session.New(oc, keys, q, logging.Discard())
	peer := keystoretest.NewPeer(t, "x")
	dev := oc.InsertDevice(nil, peer.ID)

	require.NoError(t, q.Perform(context.Background(), func(ctx context.Context, p syncctx.Privileged) error {
		assert.False(t, svc.EstablishSession(ctx, p, dev, peer.Bundle(t)))
		return nil
	}))
}

func TestResetSession_AfterEstablish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev, peer := f.remote(t, "bob")
	conv := f.oc.InsertConversation(uuid.New(), model.ConversationOneToOne, "bob")
	conv.AddParticipants(f.selfUser, dev.User())
	require.True(t, f.establish(t, dev, peer.Bundle(t)))

	require.NoError(t, f.svc.ResetSession(ctx, dev))

	assert.Nil(t, dev.Fingerprint())
	assert.True(t, f.self.IsMissing(dev))
	assert.False(t, f.svc.HasSession(ctx, dev))
	assert.True(t, f.oc.HasLocalModifications(f.self, model.KeyMissingClients))
	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageSessionReset, msgs[0].Kind())
}

func TestResetSession_OwnDeviceUsesSelfConversation(t *testing.T) {
	f := newFixture(t)
	other := f.oc.InsertDevice(f.selfUser, "laptop")
	selfConv := f.oc.InsertConversation(uuid.New(), model.ConversationSelf, "")
	selfConv.AddParticipants(f.selfUser)

	require.NoError(t, f.svc.ResetSession(context.Background(), other))

	require.Len(t, selfConv.Messages(), 1)
	assert.Equal(t, model.MessageSessionReset, selfConv.Messages()[0].Kind())
}

func TestResetSession_SelfNeverMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ResetSession(ctx, f.self))
	assert.Empty(t, f.self.Missing())

	dev, peer := f.remote(t, "bob")
	for i := 0; i < 3; i++ {
		require.True(t, f.establish(t, dev, peer.Bundle(t)))
		require.NoError(t, f.svc.ResetSession(ctx, dev))
		assert.NotContains(t, f.self.Missing(), f.self)
	}
}

func TestResetSession_UnregisteredDeviceIsNoop(t *testing.T) {
	f := newFixture(t)
	dev := f.oc.InsertDevice(nil, "")
	dev.SetFingerprint([]byte("kept"))

	require.NoError(t, f.svc.ResetSession(context.Background(), dev))
	assert.Equal(t, []byte("kept"), dev.Fingerprint())
	assert.Empty(t, f.self.Missing())
}

func TestDecrementRemainingKeys(t *testing.T) {
	for _, tc := range []struct {
		name      string
		before    int32
		after     int32
		wantDirty bool
	}{
		{name: "positive", before: 5, after: 4, wantDirty: true},
		{name: "last key", before: 1, after: 0, wantDirty: true},
		{name: "zero stays zero", before: 0, after: 0, wantDirty: false},
		{name: "negative is clamped", before: -3, after: 0, wantDirty: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.self.SetKeysRemaining(tc.before)

			f.svc.DecrementRemainingKeys(context.Background(), f.self)

			assert.Equal(t, tc.after, f.self.KeysRemaining())
			assert.Equal(t, tc.wantDirty, f.oc.HasLocalModifications(f.self, model.KeyNumberOfKeysRemaining))
		})
	}
}

func TestDecrementRemainingKeys_NeverNegative(t *testing.T) {
	f := newFixture(t)
	f.self.SetKeysRemaining(3)
	for i := 0; i < 10; i++ {
		f.svc.DecrementRemainingKeys(context.Background(), f.self)
		assert.GreaterOrEqual(t, f.self.KeysRemaining(), int32(0))
	}
}

func TestDecrementRemainingKeys_PanicsForOtherDevice(t *testing.T) {
	f := newFixture(t)
	dev, _ := f.remote(t, "bob")
	assert.Panics(t, func() { f.svc.DecrementRemainingKeys(context.Background(), dev) })
}

func TestMarkForFetchingPreKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev, _ := f.remote(t, "bob")

	require.NoError(t, f.svc.MarkForFetchingPreKeys(ctx, dev))
	assert.True(t, f.self.IsMissing(dev))
	assert.True(t, f.oc.HasLocalModifications(f.self, model.KeyMissingClients))

	known, _ := f.remote(t, "carol")
	known.SetFingerprint([]byte("fp"))
	require.NoError(t, f.svc.MarkForFetchingPreKeys(ctx, known))
	assert.False(t, f.self.IsMissing(known))
}

func TestMarkForFetchingPreKeys_SelfReadsLocalFingerprint(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.MarkForFetchingPreKeys(context.Background(), f.self))

	assert.Equal(t, crypto.Fingerprint(f.local.XPub).Bytes(), f.self.Fingerprint())
	assert.Empty(t, f.self.Missing())
}

func TestRefreshFingerprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev, peer := f.remote(t, "bob")

	ok, err := f.svc.RefreshFingerprint(ctx, dev)
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, f.establish(t, dev, peer.Bundle(t)))
	dev.SetFingerprint(nil)

	ok, err = f.svc.RefreshFingerprint(ctx, dev)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, peer.Fingerprint(), dev.Fingerprint())
}

func TestDecrypt_CorruptionFlagsDevice(t *testing.T) {
	f := newFixture(t)
	dev, peer := f.remote(t, "bob")
	require.True(t, f.establish(t, dev, peer.Bundle(t)))

	f.privileged(t, func(ctx context.Context, p syncctx.Privileged) {
		ct, err := f.svc.Encrypt(ctx, p, dev, []byte("hello"))
		if !assert.NoError(t, err) {
			return
		}
		pt, err := f.svc.Decrypt(ctx, p, dev, ct)
		assert.NoError(t, err)
		assert.Equal(t, []byte("hello"), pt)

		_, err = f.svc.Decrypt(ctx, p, dev, []byte("garbage that is long enough to parse as a message"))
		assert.ErrorIs(t, err, session.ErrCorrupted)
	})
	assert.True(t, dev.FailedToEstablishSession())
	assert.Equal(t, 1, f.oc.FailedSessions().Len())
}

func TestEncrypt_NoSession(t *testing.T) {
	f := newFixture(t)
	dev, _ := f.remote(t, "bob")

	f.privileged(t, func(ctx context.Context, p syncctx.Privileged) {
		_, err := f.svc.Encrypt(ctx, p, dev, []byte("x"))
		assert.ErrorIs(t, err, session.ErrNoSession)
	})
	assert.False(t, dev.FailedToEstablishSession())
}

func TestResetSignalingKeys(t *testing.T) {
	f := newFixture(t)
	f.self.SetSignalingKeys(&model.SignalingKeys{VerificationKey: []byte{1}})

	require.NoError(t, f.svc.ResetSignalingKeys(context.Background()))

	assert.Nil(t, f.self.SignalingKeys())
	assert.True(t, f.self.NeedsToUploadSignalingKeys())
	assert.True(t, f.oc.HasLocalModifications(f.self, model.KeyNeedsToUploadSignalingKeys))
}

func TestVerified(t *testing.T) {
	f := newFixture(t)
	dev, _ := f.remote(t, "bob")

	assert.True(t, f.svc.Verified(f.self))
	assert.False(t, f.svc.Verified(dev))
	f.oc.SetRelation(f.self, []*model.Device{dev}, model.RelationTrusted)
	assert.True(t, f.svc.Verified(dev))
}
