package server

import (
	"context"
	"time"

	"github.com/strefethen/sonos-dial-go/internal/dial"
	"github.com/strefethen/sonos-dial-go/internal/discovery"
	"github.com/strefethen/sonos-dial-go/internal/sonos"
	"github.com/strefethen/sonos-dial-go/internal/sonos/topology"
)

// InstanceProvider exposes the dial controller's view of its instances.
type InstanceProvider interface {
	Snapshot() []dial.InstanceStatus
	Status(id string) (dial.InstanceStatus, bool)
}

// GroupProvider lists the zone groups visible from a speaker.
type GroupProvider interface {
	Groups(ctx context.Context, host string) ([]topology.ZoneGroup, error)
}

// SpeakerDiscoverer finds speakers on the network.
type SpeakerDiscoverer interface {
	Discover(ctx context.Context) ([]discovery.Speaker, error)
}

// SessionGroupProvider answers group queries with a short-lived session per
// request, so the API never disturbs a dial's session or its cache.
type SessionGroupProvider struct {
	client sonos.DeviceClient
	port   int
}

// NewSessionGroupProvider creates a provider that talks to speakers on port.
func NewSessionGroupProvider(client sonos.DeviceClient, port int) *SessionGroupProvider {
	return &SessionGroupProvider{client: client, port: port}
}

// Groups implements GroupProvider.
func (p *SessionGroupProvider) Groups(ctx context.Context, host string) ([]topology.ZoneGroup, error) {
	session := sonos.NewSession(p.client, time.Minute)
	session.Connect(host, p.port, sonos.ModeGroup)
	return session.AvailableGroups(ctx)
}
