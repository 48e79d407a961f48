package sonos

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-dial-go/internal/sonos/soap"
	"github.com/strefethen/sonos-dial-go/internal/sonos/xmldoc"
)

const threeMemberTopology = `<ZoneGroupState><ZoneGroups>
  <ZoneGroup Coordinator="RINCON_B" ID="RINCON_B:1">
    <ZoneGroupMember UUID="RINCON_A" Location="http://10.0.0.5:1400/xml/device_description.xml" ZoneName="Kitchen"/>
    <ZoneGroupMember UUID="RINCON_B" Location="http://10.0.0.6:1400/xml/device_description.xml" ZoneName="Dining"/>
    <ZoneGroupMember UUID="RINCON_C" Location="http://10.0.0.7:1400/xml/device_description.xml" ZoneName="Patio"/>
  </ZoneGroup>
  <ZoneGroup Coordinator="RINCON_D" ID="RINCON_D:1">
    <ZoneGroupMember UUID="RINCON_D" Location="http://10.0.0.9:1400/xml/device_description.xml" ZoneName="Office"/>
  </ZoneGroup>
</ZoneGroups></ZoneGroupState>`

type call struct {
	Action string
	Host   string
	Port   int
	Value  any
}

type fakeDeviceClient struct {
	mu          sync.Mutex
	calls       []call
	topology    string
	topologyErr error
	volume      int
	muted       bool
	failHosts   map[string]error
}

func (f *fakeDeviceClient) record(action string, endpoint soap.Endpoint, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Action: action, Host: endpoint.Host, Port: endpoint.Port, Value: value})
	return f.failHosts[endpoint.Host]
}

func (f *fakeDeviceClient) GetVolume(_ context.Context, endpoint soap.Endpoint) (int, error) {
	return f.volume, f.record("GetVolume", endpoint, nil)
}

func (f *fakeDeviceClient) SetVolume(_ context.Context, endpoint soap.Endpoint, level int) error {
	return f.record("SetVolume", endpoint, level)
}

func (f *fakeDeviceClient) GetMute(_ context.Context, endpoint soap.Endpoint) (bool, error) {
	return f.muted, f.record("GetMute", endpoint, nil)
}

func (f *fakeDeviceClient) SetMute(_ context.Context, endpoint soap.Endpoint, mute bool) error {
	return f.record("SetMute", endpoint, mute)
}

func (f *fakeDeviceClient) GetZoneGroupState(_ context.Context, endpoint soap.Endpoint) (*xmldoc.Node, error) {
	if err := f.record("GetZoneGroupState", endpoint, nil); err != nil {
		return nil, err
	}
	if f.topologyErr != nil {
		return nil, f.topologyErr
	}
	return xmldoc.Parse([]byte(f.topology))
}

func (f *fakeDeviceClient) callsFor(action string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []call
	for _, c := range f.calls {
		if c.Action == action {
			matched = append(matched, c)
		}
	}
	return matched
}

func hostsOf(calls []call) []string {
	hosts := make([]string, 0, len(calls))
	for _, c := range calls {
		hosts = append(hosts, c.Host)
	}
	sort.Strings(hosts)
	return hosts
}

func newTestSession(client *fakeDeviceClient, host string, mode Mode) *Session {
	session := NewSession(client, 30*time.Second)
	session.Connect(host, 1400, mode)
	return session
}

func TestSession_ConnectDoesNoNetworkIO(t *testing.T) {
	client := &fakeDeviceClient{topology: threeMemberTopology}
	session := NewSession(client, 30*time.Second)
	require.False(t, session.IsConnected())

	session.Connect("10.0.0.5", 1400, ModeGroup)
	require.True(t, session.IsConnected())
	require.Empty(t, client.calls)
}

func TestSession_GroupCoordinatorIsCachedUntilReconnect(t *testing.T) {
	client := &fakeDeviceClient{topology: threeMemberTopology}
	session := newTestSession(client, "10.0.0.5", ModeGroup)

	coordinator, err := session.GroupCoordinator(context.Background())
	require.NoError(t, err)
	require.Equal(t, "10.0.0.6", coordinator)

	_, err = session.GroupCoordinator(context.Background())
	require.NoError(t, err)
	require.Len(t, client.callsFor("GetZoneGroupState"), 1)

	session.Connect("10.0.0.5", 1400, ModeGroup)
	_, err = session.GroupCoordinator(context.Background())
	require.NoError(t, err)
	require.Len(t, client.callsFor("GetZoneGroupState"), 2)
}

func TestSession_GroupCoordinatorFallsBackToOwnHost(t *testing.T) {
	client := &fakeDeviceClient{topology: threeMemberTopology}
	session := newTestSession(client, "10.0.0.99", ModeGroup)

	coordinator, err := session.GroupCoordinator(context.Background())
	require.NoError(t, err)
	require.Equal(t, "10.0.0.99", coordinator)
}

func TestSession_AvailableGroupsReusesTopologyWithinTTL(t *testing.T) {
	client := &fakeDeviceClient{topology: threeMemberTopology}
	session := newTestSession(client, "10.0.0.5", ModeGroup)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session.cache.now = func() time.Time { return now }

	groups, err := session.AvailableGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	now = now.Add(29 * time.Second)
	_, err = session.AvailableGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, client.callsFor("GetZoneGroupState"), 1)

	now = now.Add(2 * time.Second)
	_, err = session.AvailableGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, client.callsFor("GetZoneGroupState"), 2)
}

func TestSession_GroupMembers(t *testing.T) {
	client := &fakeDeviceClient{topology: threeMemberTopology}

	members, err := newTestSession(client, "10.0.0.7", ModeGroup).GroupMembers(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}, members)

	members, err = newTestSession(client, "10.0.0.50", ModeGroup).GroupMembers(context.Background())
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestSession_ReadsGoToCoordinator(t *testing.T) {
	client := &fakeDeviceClient{topology: threeMemberTopology, volume: 33, muted: true}
	session := newTestSession(client, "10.0.0.5", ModeGroup)

	volume, err := session.Volume(context.Background())
	require.NoError(t, err)
	require.Equal(t, 33, volume)

	muted, err := session.Muted(context.Background())
	require.NoError(t, err)
	require.True(t, muted)

	require.Equal(t, []string{"10.0.0.6"}, hostsOf(client.callsFor("GetVolume")))
	require.Equal(t, []string{"10.0.0.6"}, hostsOf(client.callsFor("GetMute")))
}

func TestSession_GroupModeFansOutOneCommandPerMember(t *testing.T) {
	client := &fakeDeviceClient{topology: threeMemberTopology}
	session := newTestSession(client, "10.0.0.5", ModeGroup)

	require.NoError(t, session.SetVolume(context.Background(), 40))
	require.NoError(t, session.SetMuted(context.Background(), true))

	volumeCalls := client.callsFor("SetVolume")
	require.Equal(t, []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}, hostsOf(volumeCalls))
	for _, c := range volumeCalls {
		require.Equal(t, 40, c.Value)
		require.Equal(t, 1400, c.Port)
	}
	require.Equal(t, []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}, hostsOf(client.callsFor("SetMute")))
}

func TestSession_SingleModeCommandsOnlyOwnHost(t *testing.T) {
	client := &fakeDeviceClient{topology: threeMemberTopology}
	session := newTestSession(client, "10.0.0.5", ModeSingle)

	require.NoError(t, session.SetVolume(context.Background(), 12))
	require.NoError(t, session.SetMuted(context.Background(), false))

	require.Equal(t, []string{"10.0.0.5"}, hostsOf(client.callsFor("SetVolume")))
	require.Equal(t, []string{"10.0.0.5"}, hostsOf(client.callsFor("SetMute")))
	require.Empty(t, client.callsFor("GetZoneGroupState"))
}

func TestSession_UnresolvableGroupFallsBackToOwnHost(t *testing.T) {
	client := &fakeDeviceClient{topologyErr: errors.New("boom")}
	session := newTestSession(client, "10.0.0.5", ModeGroup)

	require.NoError(t, session.SetVolume(context.Background(), 20))
	require.Equal(t, []string{"10.0.0.5"}, hostsOf(client.callsFor("SetVolume")))
}

func TestSession_FanOutFailureSurfaces(t *testing.T) {
	failure := &soap.TransportError{Action: "SetVolume", Host: "10.0.0.7", StatusCode: 500}
	client := &fakeDeviceClient{topology: threeMemberTopology, failHosts: map[string]error{"10.0.0.7": failure}}
	session := newTestSession(client, "10.0.0.5", ModeGroup)

	err := session.SetVolume(context.Background(), 20)
	var transportErr *soap.TransportError
	require.True(t, errors.As(err, &transportErr))
	require.Equal(t, "10.0.0.7", transportErr.Host)
}

func TestSession_NotConnected(t *testing.T) {
	session := NewSession(&fakeDeviceClient{}, time.Second)

	_, err := session.Volume(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, session.SetMuted(context.Background(), true), ErrNotConnected)
}
