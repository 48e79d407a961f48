package dial

import (
	"context"
	"sync"

	"github.com/strefethen/sonos-dial-go/internal/timers"
)

// State is the lifecycle stage of one dial.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateConnected     State = "connected"
	StatePolling       State = "polling"
	StateDisconnected  State = "disconnected"
)

// InstanceStatus is a point-in-time view of one dial.
type InstanceStatus struct {
	ID         string   `json:"id"`
	State      State    `json:"state"`
	Settings   Settings `json:"settings"`
	Mode       string   `json:"mode"`
	Volume     int      `json:"volume"`
	Muted      bool     `json:"muted"`
	Rotating   bool     `json:"rotating"`
	Connected  bool     `json:"connected"`
	Polling    bool     `json:"polling"`
	PendingSet bool     `json:"pending_set"`
}

// instance is the state of one dial. Fields below mu are guarded by it; the
// session and timers are replaced, never mutated, while holding mu.
type instance struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	debouncer *timers.Debouncer
	// writeMu keeps a second volume write from starting while one is in flight.
	writeMu sync.Mutex

	mu       sync.Mutex
	settings Settings
	session  DeviceSession
	poller   *timers.Repeater
	volume   int
	muted    bool
	rotating bool
	synced   bool
}

func newInstance(id string, settings Settings, options Options) *instance {
	ctx, cancel := context.WithCancel(context.Background())
	return &instance{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		debouncer: timers.NewDebouncer(options.DebounceWindow),
		settings:  settings,
		volume:    settings.Value,
	}
}

// alive is false once the dial has disappeared. Callbacks check it before
// touching state or the host UI.
func (i *instance) alive() bool {
	return i.ctx.Err() == nil
}

func (i *instance) feedbackLocked() Feedback {
	return FeedbackFor(i.volume, i.muted)
}

func (i *instance) stateLocked() State {
	switch {
	case i.settings.SpeakerHost == "":
		return StateConnected
	case i.session == nil:
		return StateDisconnected
	case !i.synced:
		return StateUninitialized
	case i.poller != nil && i.poller.Running():
		return StatePolling
	default:
		return StateConnected
	}
}

func (i *instance) status() InstanceStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return InstanceStatus{
		ID:         i.id,
		State:      i.stateLocked(),
		Settings:   i.settings,
		Mode:       i.settings.Mode().String(),
		Volume:     i.volume,
		Muted:      i.muted,
		Rotating:   i.rotating,
		Connected:  i.session != nil,
		Polling:    i.poller != nil && i.poller.Running(),
		PendingSet: i.debouncer.Pending(),
	}
}
