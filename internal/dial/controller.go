// Package dial drives volume and mute for every Sonos dial placed on the host
// application. Each dial is an independent instance with its own session,
// poll loop and debounced volume writer.
package dial

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/strefethen/sonos-dial-go/internal/sonos"
)

// ErrNoSpeakerHost is the configuration error raised when a dial is used
// before a speaker host has been set.
var ErrNoSpeakerHost = errors.New("no speaker host configured")

const (
	DefaultPollInterval   = 3 * time.Second
	DefaultDebounceWindow = 500 * time.Millisecond
)

// DeviceSession is the speaker connection a dial issues commands through.
type DeviceSession interface {
	Volume(ctx context.Context) (int, error)
	Muted(ctx context.Context) (bool, error)
	SetVolume(ctx context.Context, level int) error
	SetMuted(ctx context.Context, muted bool) error
}

// SessionFactory creates a connected session for host in the given mode.
type SessionFactory func(host string, mode sonos.Mode) DeviceSession

// HostUI receives display updates and settings to persist.
type HostUI interface {
	SetFeedback(instanceID string, feedback Feedback) error
	PersistSettings(instanceID string, settings Settings) error
	ShowAlert(instanceID string) error
}

// Options tunes timing and observability.
type Options struct {
	PollInterval   time.Duration
	DebounceWindow time.Duration
	Logger         zerolog.Logger
	// OnInstanceCount is called with the number of live dials after each
	// appear and disappear.
	OnInstanceCount func(count int)
}

// Controller owns every live dial, keyed by the host's instance id.
type Controller struct {
	ui         HostUI
	newSession SessionFactory
	options    Options
	logger     zerolog.Logger

	mu        sync.Mutex
	instances map[string]*instance
}

// NewController creates a controller with no dials.
func NewController(ui HostUI, newSession SessionFactory, options Options) *Controller {
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.DebounceWindow <= 0 {
		options.DebounceWindow = DefaultDebounceWindow
	}
	return &Controller{
		ui:         ui,
		newSession: newSession,
		options:    options,
		logger:     options.Logger.With().Str("component", "dial").Logger(),
		instances:  make(map[string]*instance),
	}
}

func (c *Controller) lookup(id string) *instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instances[id]
}

func (c *Controller) reportCount(count int) {
	if c.options.OnInstanceCount != nil {
		c.options.OnInstanceCount(count)
	}
}

// Appear registers a dial. With a speaker host it connects, reads the current
// volume and mute state in the background, then starts polling.
func (c *Controller) Appear(id string, settings Settings) {
	settings = settings.Normalized()
	inst := newInstance(id, settings, c.options)

	c.mu.Lock()
	previous := c.instances[id]
	c.instances[id] = inst
	count := len(c.instances)
	c.mu.Unlock()

	if previous != nil {
		c.teardown(previous)
	}
	c.reportCount(count)

	inst.mu.Lock()
	feedback := inst.feedbackLocked()
	var session DeviceSession
	if settings.SpeakerHost != "" {
		session = c.connectLocked(inst)
	}
	inst.mu.Unlock()

	c.pushFeedback(inst, feedback)
	if session == nil {
		return
	}
	go c.synchronize(inst, session)
}

// Rotate applies ticks optimistically and schedules one debounced write.
func (c *Controller) Rotate(id string, ticks int, settings Settings) {
	inst := c.lookup(id)
	if inst == nil {
		return
	}
	step := settings.Normalized().VolumeStep

	inst.mu.Lock()
	if inst.settings.SpeakerHost == "" {
		inst.rotating = false
		inst.mu.Unlock()
		c.logger.Warn().Str("instance", id).Err(ErrNoSpeakerHost).Msg("Rotate ignored")
		c.alert(inst)
		return
	}
	inst.settings.VolumeStep = step
	inst.volume = Clamp(inst.volume + ticks*step)
	inst.settings.Value = inst.volume
	inst.rotating = true
	feedback := inst.feedbackLocked()
	persisted := inst.settings
	inst.mu.Unlock()

	c.pushFeedback(inst, feedback)
	c.persist(inst, persisted)
	inst.debouncer.Trigger(func() { c.flushVolume(inst) })
}

// Press toggles mute.
func (c *Controller) Press(id string, settings Settings) {
	c.toggleMute(id)
}

// Tap toggles mute, exactly like Press.
func (c *Controller) Tap(id string, settings Settings) {
	c.toggleMute(id)
}

// SettingsChanged reconnects when the speaker host or mode changed and
// otherwise only stores the new settings.
func (c *Controller) SettingsChanged(id string, settings Settings) {
	inst := c.lookup(id)
	if inst == nil {
		return
	}
	next := settings.Normalized()

	inst.mu.Lock()
	previous := inst.settings
	next.Value = inst.volume
	inst.settings = next
	if previous.SpeakerHost == next.SpeakerHost && previous.SingleSpeakerMode == next.SingleSpeakerMode {
		inst.mu.Unlock()
		return
	}

	poller := inst.poller
	inst.poller = nil
	inst.session = nil
	inst.synced = false
	var session DeviceSession
	if next.SpeakerHost != "" {
		session = c.connectLocked(inst)
	}
	inst.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	c.logger.Info().
		Str("instance", id).
		Str("host", next.SpeakerHost).
		Str("mode", next.Mode().String()).
		Msg("Speaker settings changed")
	if session != nil {
		go c.synchronize(inst, session)
	}
}

// Disappear cancels the dial's timers, releases its session and forgets it.
// Later events for id are ignored.
func (c *Controller) Disappear(id string) {
	c.mu.Lock()
	inst := c.instances[id]
	delete(c.instances, id)
	count := len(c.instances)
	c.mu.Unlock()

	if inst == nil {
		return
	}
	c.teardown(inst)
	c.reportCount(count)
}

// Shutdown tears down every dial.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	instances := c.instances
	c.instances = make(map[string]*instance)
	c.mu.Unlock()

	for _, inst := range instances {
		c.teardown(inst)
	}
	c.reportCount(0)
}

// Snapshot lists every live dial ordered by id.
func (c *Controller) Snapshot() []InstanceStatus {
	c.mu.Lock()
	instances := make([]*instance, 0, len(c.instances))
	for _, inst := range c.instances {
		instances = append(instances, inst)
	}
	c.mu.Unlock()

	statuses := make([]InstanceStatus, 0, len(instances))
	for _, inst := range instances {
		statuses = append(statuses, inst.status())
	}
	sort.Slice(statuses, func(a, b int) bool { return statuses[a].ID < statuses[b].ID })
	return statuses
}

// Status returns one dial's status.
func (c *Controller) Status(id string) (InstanceStatus, bool) {
	inst := c.lookup(id)
	if inst == nil {
		return InstanceStatus{}, false
	}
	return inst.status(), true
}

func (c *Controller) teardown(inst *instance) {
	inst.cancel()
	inst.debouncer.Cancel()

	inst.mu.Lock()
	poller := inst.poller
	inst.poller = nil
	inst.session = nil
	inst.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}

// connectLocked replaces the dial's session. inst.mu must be held.
func (c *Controller) connectLocked(inst *instance) DeviceSession {
	session := c.newSession(inst.settings.SpeakerHost, inst.settings.Mode())
	inst.session = session
	return session
}

// ensureSession returns the live session, reconnecting when it was dropped.
func (c *Controller) ensureSession(inst *instance) (DeviceSession, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.session != nil {
		return inst.session, nil
	}
	if inst.settings.SpeakerHost == "" {
		return nil, ErrNoSpeakerHost
	}
	return c.connectLocked(inst), nil
}

// dropSession forgets session so the next use reconnects. A newer session
// installed meanwhile is left alone.
func (c *Controller) dropSession(inst *instance, session DeviceSession) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.session == session {
		inst.session = nil
	}
}

func (c *Controller) pushFeedback(inst *instance, feedback Feedback) {
	if !inst.alive() {
		return
	}
	if err := c.ui.SetFeedback(inst.id, feedback); err != nil {
		c.logger.Warn().Err(err).Str("instance", inst.id).Msg("Failed to set feedback")
	}
}

func (c *Controller) persist(inst *instance, settings Settings) {
	if !inst.alive() {
		return
	}
	if err := c.ui.PersistSettings(inst.id, settings); err != nil {
		c.logger.Warn().Err(err).Str("instance", inst.id).Msg("Failed to persist settings")
	}
}

func (c *Controller) alert(inst *instance) {
	if !inst.alive() {
		return
	}
	if err := c.ui.ShowAlert(inst.id); err != nil {
		c.logger.Warn().Err(err).Str("instance", inst.id).Msg("Failed to show alert")
	}
}
