package trust

import (
	"context"

	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/security"
)

// Service applies trust decisions of the self device.
type Service struct {
	oc         *model.ObjectContext
	classifier security.Classifier
	log        logging.Logger
}

func New(oc *model.ObjectContext, classifier security.Classifier, log logging.Logger) *Service {
	return &Service{oc: oc, classifier: classifier, log: log.With("component", "trust")}
}

// Trust moves devices from ignored to trusted, clears their notification
// flag and raises a trusted change for the affected conversations.
func (s *Service) Trust(ctx context.Context, devices []*model.Device) {
	self := s.oc.SelfDevice()
	if self == nil {
		return
	}
	targets := filter(self, devices)
	if len(targets) == 0 {
		return
	}
	s.oc.SetRelation(self, targets, model.RelationTrusted)
	for _, d := range targets {
		d.SetNeedsToNotifyUser(false)
	}
	s.log.Debug(ctx, "devices trusted", "count", len(targets))
	s.raise(ctx, security.Change{Kind: security.ChangeTrusted, Devices: targets})
}

// Ignore moves devices from trusted to ignored at the user's request.
func (s *Service) Ignore(ctx context.Context, devices []*model.Device) {
	changed := s.demote(devices)
	if len(changed) == 0 {
		return
	}
	s.log.Debug(ctx, "devices ignored", "count", len(changed))
	s.raise(ctx, security.Change{Kind: security.ChangeIgnored, Devices: changed})
}

// AddNewlyDiscoveredAsIgnored ignores devices that appeared without the
// user's involvement. causedBy is the received message that revealed them,
// if any.
func (s *Service) AddNewlyDiscoveredAsIgnored(ctx context.Context, devices []*model.Device, causedBy *model.Message) {
	changed := s.demote(devices)
	if len(changed) == 0 {
		return
	}
	s.log.Debug(ctx, "devices discovered", "count", len(changed))
	s.raise(ctx, security.Change{Kind: security.ChangeDiscovered, Devices: changed, CausedBy: causedBy})
}

// demote returns only the devices whose relation actually changed, so
// repeating an ignore raises nothing.
func (s *Service) demote(devices []*model.Device) []*model.Device {
	self := s.oc.SelfDevice()
	if self == nil {
		return nil
	}
	targets := filter(self, devices)
	if len(targets) == 0 {
		return nil
	}
	return s.oc.SetRelation(self, targets, model.RelationIgnored)
}

func (s *Service) raise(ctx context.Context, change security.Change) {
	for _, conv := range s.oc.ConversationsAffectedBy(change.Devices) {
		if conv.IsReadOnly() {
			continue
		}
		relevant := DevicesIn(conv, change.Devices)
		if len(relevant) == 0 {
			continue
		}
		scoped := change
		scoped.Devices = relevant
		security.Apply(ctx, s.classifier, conv, scoped)
	}
}

// DevicesIn keeps the devices whose owner participates in conv.
func DevicesIn(conv *model.Conversation, devices []*model.Device) []*model.Device {
	var out []*model.Device
	for _, d := range devices {
		if owner := d.User(); owner != nil && conv.IsParticipant(owner) {
			out = append(out, d)
		}
	}
	return out
}

func filter(self *model.Device, devices []*model.Device) []*model.Device {
	seen := map[*model.Device]bool{}
	out := make([]*model.Device, 0, len(devices))
	for _, d := range devices {
		if d == nil || d == self || seen[d] || d.IsDeleted() {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
