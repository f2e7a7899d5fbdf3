package security

import (
	"context"

	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
)

// LevelClassifier is the default Classifier. A conversation is secure when
// the self device trusts every device of every other participant; ignoring
// or discovering a device degrades a secure conversation.
type LevelClassifier struct {
	oc  *model.ObjectContext
	log logging.Logger
}

func NewLevelClassifier(oc *model.ObjectContext, log logging.Logger) *LevelClassifier {
	return &LevelClassifier{oc: oc, log: log.With("component", "security")}
}

func (c *LevelClassifier) AfterTrusted(ctx context.Context, conv *model.Conversation, _ []*model.Device) {
	c.reevaluate(ctx, conv)
}

func (c *LevelClassifier) AfterIgnored(ctx context.Context, conv *model.Conversation, devices []*model.Device) {
	c.degrade(ctx, conv, len(devices), nil)
}

func (c *LevelClassifier) AfterDiscovered(
	ctx context.Context,
	conv *model.Conversation,
	devices []*model.Device,
	causedBy *model.Message,
) {
	if c.degrade(ctx, conv, len(devices), causedBy) {
		conv.AppendNewDeviceMessage(c.oc.SelfUser())
	}
}

func (c *LevelClassifier) AfterDeviceRemoved(ctx context.Context, conv *model.Conversation, _ *model.User) {
	c.reevaluate(ctx, conv)
}

func (c *LevelClassifier) reevaluate(ctx context.Context, conv *model.Conversation) {
	if !c.allTrusted(conv) {
		return
	}
	if conv.SecurityLevel() != model.SecuritySecure {
		conv.SetSecurityLevel(model.SecuritySecure)
		c.log.Info(ctx, "conversation secure", "conversation", conv.ID())
	}
}

func (c *LevelClassifier) degrade(ctx context.Context, conv *model.Conversation, n int, causedBy *model.Message) bool {
	if conv.SecurityLevel() != model.SecuritySecure {
		return false
	}
	conv.SetSecurityLevel(model.SecuritySecureWithIgnored)
	args := []any{"conversation", conv.ID(), "devices", n}
	if causedBy != nil {
		args = append(args, "message", causedBy.ID())
	}
	c.log.Info(ctx, "conversation degraded", args...)
	return true
}

// allTrusted requires at least one remote device so that an empty
// conversation is never reported secure.
func (c *LevelClassifier) allTrusted(conv *model.Conversation) bool {
	self := c.oc.SelfDevice()
	if self == nil {
		return false
	}
	seen := 0
	for _, u := range conv.Participants() {
		for _, d := range u.Devices() {
			if d == self {
				continue
			}
			if !self.Trusts(d) {
				return false
			}
			seen++
		}
	}
	return seen > 0
}

var _ Classifier = (*LevelClassifier)(nil)
