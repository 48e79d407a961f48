package sonos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/strefethen/sonos-dial-go/internal/sonos/soap"
	"github.com/strefethen/sonos-dial-go/internal/sonos/topology"
	"github.com/strefethen/sonos-dial-go/internal/sonos/xmldoc"
)

// Mode selects which players receive volume and mute commands.
type Mode int

const (
	// ModeGroup commands every member of the speaker's zone group.
	ModeGroup Mode = iota
	// ModeSingle commands only the configured speaker.
	ModeSingle
)

func (m Mode) String() string {
	if m == ModeSingle {
		return "single"
	}
	return "group"
}

// ErrNotConnected is returned by operations on a session with no host.
var ErrNotConnected = errors.New("sonos session has no speaker host")

// DeviceClient is the subset of the SOAP client a Session needs.
type DeviceClient interface {
	GetVolume(ctx context.Context, endpoint soap.Endpoint) (int, error)
	SetVolume(ctx context.Context, endpoint soap.Endpoint, level int) error
	GetMute(ctx context.Context, endpoint soap.Endpoint) (bool, error)
	SetMute(ctx context.Context, endpoint soap.Endpoint, mute bool) error
	GetZoneGroupState(ctx context.Context, endpoint soap.Endpoint) (*xmldoc.Node, error)
}

// Session holds the connection parameters for one dial and resolves which
// players its commands go to.
type Session struct {
	client DeviceClient
	cache  *ZoneGroupCache

	mu          sync.Mutex
	host        string
	port        int
	mode        Mode
	coordinator string
}

// NewSession creates an unconnected session whose topology cache uses ttl.
func NewSession(client DeviceClient, ttl time.Duration) *Session {
	return &Session{
		client: client,
		cache:  NewZoneGroupCache(ttl),
	}
}

// Connect sets the target speaker and forgets any resolved coordinator and
// cached topology. It performs no network I/O.
func (s *Session) Connect(host string, port int, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.host = host
	s.port = port
	s.mode = mode
	s.coordinator = ""
	s.cache.Invalidate()
}

// IsConnected reports whether a host is set.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host != ""
}

// Host returns the configured speaker host.
func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Mode returns the command scope.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) params() (string, int, Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.host == "" {
		return "", 0, s.mode, ErrNotConnected
	}
	return s.host, s.port, s.mode, nil
}

func (s *Session) endpoint(host string, port int) soap.Endpoint {
	return soap.Endpoint{Host: host, Port: port}
}

// AvailableGroups returns the zone groups visible from the session's speaker.
// The topology document is fetched at most once per cache TTL.
func (s *Session) AvailableGroups(ctx context.Context) ([]topology.ZoneGroup, error) {
	host, port, _, err := s.params()
	if err != nil {
		return nil, err
	}
	doc, err := s.cache.GetOrFetch(func() (*xmldoc.Node, error) {
		return s.client.GetZoneGroupState(ctx, s.endpoint(host, port))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch zone group topology: %w", err)
	}
	return topology.Resolve(doc), nil
}

// GroupCoordinator returns the host of the coordinator of the group that
// contains the session's speaker, or the speaker itself when it is not in any
// group. The answer is kept until the next Connect.
func (s *Session) GroupCoordinator(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.coordinator
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	host, _, _, err := s.params()
	if err != nil {
		return "", err
	}
	groups, err := s.AvailableGroups(ctx)
	if err != nil {
		return "", err
	}

	coordinator := host
	if group, ok := topology.GroupContaining(groups, host); ok {
		coordinator = group.CoordinatorHost
	}

	s.mu.Lock()
	if s.host == host {
		s.coordinator = coordinator
	}
	s.mu.Unlock()
	return coordinator, nil
}

// GroupMembers returns the member hosts of the speaker's group, or an empty
// slice when the speaker is not in any group.
func (s *Session) GroupMembers(ctx context.Context) ([]string, error) {
	host, _, _, err := s.params()
	if err != nil {
		return nil, err
	}
	groups, err := s.AvailableGroups(ctx)
	if err != nil {
		return nil, err
	}
	group, ok := topology.GroupContaining(groups, host)
	if !ok {
		return []string{}, nil
	}
	members := make([]string, len(group.MemberHosts))
	copy(members, group.MemberHosts)
	return members, nil
}

// Volume reads the volume from the group coordinator.
func (s *Session) Volume(ctx context.Context) (int, error) {
	_, port, _, err := s.params()
	if err != nil {
		return 0, err
	}
	coordinator, err := s.GroupCoordinator(ctx)
	if err != nil {
		return 0, err
	}
	return s.client.GetVolume(ctx, s.endpoint(coordinator, port))
}

// Muted reads the mute state from the group coordinator.
func (s *Session) Muted(ctx context.Context) (bool, error) {
	_, port, _, err := s.params()
	if err != nil {
		return false, err
	}
	coordinator, err := s.GroupCoordinator(ctx)
	if err != nil {
		return false, err
	}
	return s.client.GetMute(ctx, s.endpoint(coordinator, port))
}

// SetVolume sends the volume to every target player in parallel.
func (s *Session) SetVolume(ctx context.Context, level int) error {
	targets, port, err := s.targets(ctx)
	if err != nil {
		return err
	}
	return FanOut(ctx, targets, func(ctx context.Context, host string) error {
		return s.client.SetVolume(ctx, s.endpoint(host, port), level)
	})
}

// SetMuted sends the mute state to every target player in parallel.
func (s *Session) SetMuted(ctx context.Context, muted bool) error {
	targets, port, err := s.targets(ctx)
	if err != nil {
		return err
	}
	return FanOut(ctx, targets, func(ctx context.Context, host string) error {
		return s.client.SetMute(ctx, s.endpoint(host, port), muted)
	})
}

// targets returns the hosts a write goes to: the speaker alone in single mode,
// otherwise every group member. An unresolvable group falls back to the
// speaker alone.
func (s *Session) targets(ctx context.Context) ([]string, int, error) {
	host, port, mode, err := s.params()
	if err != nil {
		return nil, 0, err
	}
	if mode == ModeSingle {
		return []string{host}, port, nil
	}
	members, err := s.GroupMembers(ctx)
	if err != nil || len(members) == 0 {
		return []string{host}, port, nil
	}
	return members, port, nil
}
