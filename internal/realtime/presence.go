package realtime

import (
	"time"

	"github.com/charlesng35/gotchufam/internal/services"
)

// PresencePublisher pushes freshly computed online sets to family streams.
type PresencePublisher struct {
	hub *Hub
}

// NewPresencePublisher adapts hub into a services.PresenceNotifier.
func NewPresencePublisher(hub *Hub) *PresencePublisher {
	return &PresencePublisher{hub: hub}
}

// NotifyOnline implements services.PresenceNotifier. Sets older than the last one
// delivered on the family stream are dropped.
func (p *PresencePublisher) NotifyOnline(familyID string, asOf time.Time, online []services.OnlineEntry) {
	if p == nil || p.hub == nil {
		return
	}
	p.hub.PublishSnapshot(FamilyStream(familyID), asOf.UnixNano(), Message{Event: EventOnline, Data: online})
}

// NotifyGone implements services.PresenceNotifier by closing the streams of swept users.
func (p *PresencePublisher) NotifyGone(userIDs []string) {
	if p == nil || p.hub == nil {
		return
	}
	p.hub.DisconnectUsers(userIDs...)
}
