// Package security classifies conversations after trust changes. The trust
// engine and the device registry describe what changed; a Classifier decides
// what that means for each affected conversation's security level.
package security

import (
	"context"
	"fmt"

	"cipherclients/internal/model"
	"cipherclients/internal/observability/metrics"
)

// ChangeKind names a trust transition.
type ChangeKind uint8

const (
	ChangeTrusted ChangeKind = iota + 1
	ChangeIgnored
	ChangeDiscovered
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeTrusted:
		return "trusted"
	case ChangeIgnored:
		return "ignored"
	case ChangeDiscovered:
		return "discovered"
	default:
		return fmt.Sprintf("ChangeKind(%d)", uint8(k))
	}
}

// Change is one classification request. CausedBy is only set for
// ChangeDiscovered, when a received message revealed the devices.
type Change struct {
	Kind     ChangeKind
	Devices  []*model.Device
	CausedBy *model.Message
}

// Classifier updates a conversation's security level.
type Classifier interface {
	AfterTrusted(ctx context.Context, conv *model.Conversation, devices []*model.Device)
	AfterIgnored(ctx context.Context, conv *model.Conversation, devices []*model.Device)
	AfterDiscovered(ctx context.Context, conv *model.Conversation, devices []*model.Device, causedBy *model.Message)

	// AfterDeviceRemoved re-evaluates conv once a device of user is gone.
	AfterDeviceRemoved(ctx context.Context, conv *model.Conversation, user *model.User)
}

// Apply routes change to the matching Classifier method.
func Apply(ctx context.Context, c Classifier, conv *model.Conversation, change Change) {
	metrics.SecurityChangesTotal.WithLabelValues(change.Kind.String()).Inc()

	switch change.Kind {
	case ChangeTrusted:
		c.AfterTrusted(ctx, conv, change.Devices)
	case ChangeIgnored:
		c.AfterIgnored(ctx, conv, change.Devices)
	case ChangeDiscovered:
		c.AfterDiscovered(ctx, conv, change.Devices, change.CausedBy)
	default:
		panic(fmt.Sprintf("security: unhandled change kind %v", change.Kind))
	}
}
