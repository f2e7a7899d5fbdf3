package trust_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/security"
	"cipherclients/internal/security/securitytest"
	"cipherclients/internal/services/trust"
)

type fixture struct {
	oc       *model.ObjectContext
	selfUser *model.User
	self     *model.Device
	rec      *securitytest.Recorder
	svc      *trust.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	oc := model.NewObjectContext()
	t.Cleanup(func() { _ = oc.Close() })
	selfUser := oc.InsertUser(uuid.New(), "me")
	self := oc.InsertDevice(selfUser, "self")
	oc.SetSelfDevice(self)
	rec := &securitytest.Recorder{}
	return fixture{oc: oc, selfUser: selfUser, self: self, rec: rec, svc: trust.New(oc, rec, logging.Discard())}
}

func (f fixture) conversation(kind model.ConversationType, users ...*model.User) *model.Conversation {
	c := f.oc.InsertConversation(uuid.New(), kind, "")
	c.AddParticipants(users...)
	return c
}

func TestTrust_RaisesPerAffectedConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.oc.InsertUser(uuid.New(), "x")
	b := f.oc.InsertDevice(x, "b")
	c := f.oc.InsertDevice(f.selfUser, "c")
	b.SetNeedsToNotifyUser(true)
	c.SetNeedsToNotifyUser(true)

	c1 := f.conversation(model.ConversationGroup, f.selfUser, x)
	c2 := f.conversation(model.ConversationOneToOne, f.selfUser, x)
	selfConv := f.conversation(model.ConversationSelf, f.selfUser)
	archived := f.conversation(model.ConversationGroup, f.selfUser)
	archived.SetArchived(true)

	f.svc.Trust(ctx, []*model.Device{b, c})

	assert.True(t, f.self.Trusts(b))
	assert.True(t, f.self.Trusts(c))
	assert.False(t, b.NeedsToNotifyUser())
	assert.False(t, c.NeedsToNotifyUser())
	assert.ElementsMatch(t, []*model.Conversation{c1, c2, selfConv, archived}, f.rec.Conversations())

	for _, e := range f.rec.Events() {
		assert.Equal(t, security.ChangeTrusted, e.Kind)
		if e.Conversation == selfConv || e.Conversation == archived {
			assert.Equal(t, []*model.Device{c}, e.Devices)
		} else {
			assert.Equal(t, []*model.Device{b, c}, e.Devices)
		}
	}
}

func TestTrust_SkipsReadOnlyAndUnrelatedConversations(t *testing.T) {
	f := newFixture(t)
	x := f.oc.InsertUser(uuid.New(), "x")
	y := f.oc.InsertUser(uuid.New(), "y")
	b := f.oc.InsertDevice(x, "b")

	left := f.conversation(model.ConversationGroup, x)
	f.conversation(model.ConversationGroup, f.selfUser, y)
	active := f.conversation(model.ConversationGroup, f.selfUser, x)

	f.svc.Trust(context.Background(), []*model.Device{b})

	assert.Equal(t, []*model.Conversation{active}, f.rec.Conversations())
	assert.True(t, left.IsReadOnly())
}

func TestTrustThenIgnore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.oc.InsertUser(uuid.New(), "x")
	b := f.oc.InsertDevice(x, "b")
	c := f.oc.InsertDevice(x, "c")
	set := []*model.Device{b, c, f.self}

	f.svc.Trust(ctx, set)
	f.svc.Ignore(ctx, set)

	assert.Empty(t, f.self.TrustedDevices())
	assert.Equal(t, []*model.Device{b, c}, f.self.IgnoredDevices())
	for _, d := range []*model.Device{b, c} {
		assert.Empty(t, d.TrustedBy())
		assert.Equal(t, []*model.Device{f.self}, d.IgnoredBy())
		assert.False(t, f.self.Trusts(d) && f.self.Ignores(d))
	}
	assert.Empty(t, f.self.IgnoredBy())
}

func TestIgnore_TwiceRaisesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.oc.InsertUser(uuid.New(), "x")
	b := f.oc.InsertDevice(x, "b")
	f.conversation(model.ConversationGroup, f.selfUser, x)

	f.svc.Ignore(ctx, []*model.Device{b})
	f.svc.Ignore(ctx, []*model.Device{b})

	events := f.rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, security.ChangeIgnored, events[0].Kind)
}

func TestDiscovered_CarriesCause(t *testing.T) {
	f := newFixture(t)
	x := f.oc.InsertUser(uuid.New(), "x")
	b := f.oc.InsertDevice(x, "b")
	conv := f.conversation(model.ConversationOneToOne, f.selfUser, x)
	msg := conv.AppendTextMessage(x, "hi from a new phone")

	f.svc.AddNewlyDiscoveredAsIgnored(context.Background(), []*model.Device{b}, msg)

	events := f.rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, security.ChangeDiscovered, events[0].Kind)
	assert.Same(t, msg, events[0].CausedBy)
	assert.True(t, f.self.Ignores(b))
}

func TestEmptyOrSelfOnlyIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.conversation(model.ConversationSelf, f.selfUser)

	f.svc.Trust(ctx, nil)
	f.svc.Trust(ctx, []*model.Device{f.self})
	f.svc.Ignore(ctx, []*model.Device{f.self})
	f.svc.AddNewlyDiscoveredAsIgnored(ctx, []*model.Device{}, nil)

	assert.Empty(t, f.rec.Events())
	assert.Empty(t, f.self.TrustedDevices())
	assert.Empty(t, f.self.IgnoredDevices())
}

func TestNoSelfDeviceIsNoop(t *testing.T) {
	oc := model.NewObjectContext()
	rec := &securitytest.Recorder{}
	svc := trust.New(oc, rec, logging.Discard())
	d := oc.InsertDevice(oc.InsertUser(uuid.New(), "x"), "d")

	svc.Trust(context.Background(), []*model.Device{d})
	svc.Ignore(context.Background(), []*model.Device{d})

	assert.Empty(t, rec.Events())
}

func TestConversationsAffectedBy_DetachedDevicesDoNotResetUnion(t *testing.T) {
	f := newFixture(t)
	x := f.oc.InsertUser(uuid.New(), "x")
	b := f.oc.InsertDevice(x, "b")
	detached := f.oc.InsertDevice(nil, "gone")
	conv := f.conversation(model.ConversationGroup, f.selfUser, x)

	got := f.oc.ConversationsAffectedBy([]*model.Device{b, detached})
	assert.Equal(t, []*model.Conversation{conv}, got)
}

func TestTrustIgnoreSequencesKeepRelationsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.oc.InsertUser(uuid.New(), "x")
	devs := []*model.Device{
		f.oc.InsertDevice(x, "a"),
		f.oc.InsertDevice(x, "b"),
		f.oc.InsertDevice(f.selfUser, "c"),
	}
	ops := []func([]*model.Device){
		func(d []*model.Device) { f.svc.Trust(ctx, d) },
		func(d []*model.Device) { f.svc.Ignore(ctx, d) },
		func(d []*model.Device) { f.svc.AddNewlyDiscoveredAsIgnored(ctx, d, nil) },
	}
	for i := 0; i < 30; i++ {
		op := ops[i%len(ops)]
		op([]*model.Device{devs[i%len(devs)], devs[(i*7)%len(devs)]})

		for _, d := range devs {
			assert.False(t, f.self.Trusts(d) && f.self.Ignores(d))
			assert.Equal(t, f.self.Trusts(d), containsDevice(d.TrustedBy(), f.self))
			assert.Equal(t, f.self.Ignores(d), containsDevice(d.IgnoredBy(), f.self))
		}
		assert.False(t, f.self.Trusts(f.self) || f.self.Ignores(f.self))
	}
}

func containsDevice(ds []*model.Device, d *model.Device) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}
