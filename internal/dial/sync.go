package dial

import (
	"context"
	"errors"

	"github.com/strefethen/sonos-dial-go/internal/timers"
)

// readState reads volume then mute through session.
func readState(ctx context.Context, session DeviceSession) (int, bool, error) {
	volume, err := session.Volume(ctx)
	if err != nil {
		return 0, false, err
	}
	muted, err := session.Muted(ctx)
	if err != nil {
		return 0, false, err
	}
	return Clamp(volume), muted, nil
}

// synchronize performs the initial read after a (re)connect, publishes it and
// starts polling. A failed read drops the session; polling retries it.
func (c *Controller) synchronize(inst *instance, session DeviceSession) {
	volume, muted, err := readState(inst.ctx, session)
	if err != nil {
		if inst.alive() {
			c.logger.Warn().Err(err).Str("instance", inst.id).Msg("Initial speaker read failed")
		}
		c.dropSession(inst, session)
		c.startPolling(inst)
		return
	}

	inst.mu.Lock()
	if !inst.alive() || inst.session != session {
		inst.mu.Unlock()
		return
	}
	// A rotation that started during the read owns the volume; its flush
	// writes the value the user sees.
	if !inst.rotating {
		inst.volume = volume
		inst.settings.Value = volume
	}
	inst.muted = muted
	inst.synced = true
	feedback := inst.feedbackLocked()
	persisted := inst.settings
	inst.mu.Unlock()

	c.pushFeedback(inst, feedback)
	c.persist(inst, persisted)
	c.startPolling(inst)
}

// startPolling starts the poll loop unless one is already running.
func (c *Controller) startPolling(inst *instance) {
	inst.mu.Lock()
	if !inst.alive() || inst.settings.SpeakerHost == "" || (inst.poller != nil && inst.poller.Running()) {
		inst.mu.Unlock()
		return
	}
	poller := c.newPoller(inst)
	inst.poller = poller
	inst.mu.Unlock()

	poller.Start()
}

// restartPolling replaces any running poll loop so the next cycle is a full
// interval away.
func (c *Controller) restartPolling(inst *instance) {
	inst.mu.Lock()
	previous := inst.poller
	inst.poller = nil
	var poller *timers.Repeater
	if inst.alive() && inst.settings.SpeakerHost != "" {
		poller = c.newPoller(inst)
		inst.poller = poller
	}
	inst.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	if poller != nil {
		poller.Start()
	}
}

func (c *Controller) newPoller(inst *instance) *timers.Repeater {
	return timers.NewRepeater(c.options.PollInterval, func(ctx context.Context) bool {
		return c.pollCycle(ctx, inst)
	})
}

// pollCycle reconciles local state with the speaker. It returns false only
// when polling should end for good.
func (c *Controller) pollCycle(ctx context.Context, inst *instance) bool {
	if !inst.alive() {
		return false
	}
	inst.mu.Lock()
	host := inst.settings.SpeakerHost
	inst.mu.Unlock()
	if host == "" {
		return false
	}

	session, err := c.ensureSession(inst)
	if err != nil {
		return true
	}

	volume, muted, err := readState(ctx, session)
	if err != nil {
		// A stopped cycle says nothing about the session.
		if ctx.Err() != nil {
			return true
		}
		c.logger.Debug().Err(err).Str("instance", inst.id).Msg("Poll read failed")
		c.dropSession(inst, session)
		return true
	}

	inst.mu.Lock()
	if !inst.alive() || ctx.Err() != nil {
		inst.mu.Unlock()
		return true
	}
	inst.synced = true
	if inst.rotating || (inst.volume == volume && inst.muted == muted) {
		inst.mu.Unlock()
		return true
	}
	inst.volume = volume
	inst.muted = muted
	inst.settings.Value = volume
	feedback := inst.feedbackLocked()
	persisted := inst.settings
	inst.mu.Unlock()

	c.logger.Debug().Str("instance", inst.id).Int("volume", volume).Bool("muted", muted).Msg("Speaker changed externally")
	c.pushFeedback(inst, feedback)
	c.persist(inst, persisted)
	return true
}

// flushVolume is the debounced write: unmute if needed, then set the latest
// volume. Whatever happens, rotation ends and polling restarts.
func (c *Controller) flushVolume(inst *instance) {
	if !inst.alive() {
		return
	}
	inst.writeMu.Lock()
	defer inst.writeMu.Unlock()

	err := c.writeVolume(inst)
	if err != nil && inst.alive() {
		c.logger.Warn().Err(err).Str("instance", inst.id).Msg("Volume update failed")
		c.alert(inst)
	}

	inst.mu.Lock()
	// A tick that arrived during the write has its own flush pending.
	if !inst.debouncer.Pending() {
		inst.rotating = false
	}
	inst.mu.Unlock()
	c.restartPolling(inst)
}

func (c *Controller) writeVolume(inst *instance) error {
	session, err := c.ensureSession(inst)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	target := inst.volume
	muted := inst.muted
	inst.mu.Unlock()

	if muted {
		if err := session.SetMuted(inst.ctx, false); err != nil {
			c.dropSession(inst, session)
			return err
		}
		inst.mu.Lock()
		inst.muted = false
		feedback := inst.feedbackLocked()
		inst.mu.Unlock()
		c.pushFeedback(inst, feedback)
	}

	if err := session.SetVolume(inst.ctx, target); err != nil {
		c.dropSession(inst, session)
		return err
	}
	c.logger.Debug().Str("instance", inst.id).Int("volume", target).Msg("Volume set")
	return nil
}

// toggleMute flips the displayed mute state at once and sends the command in
// the background. The command is not ordered against a pending volume write.
func (c *Controller) toggleMute(id string) {
	inst := c.lookup(id)
	if inst == nil {
		return
	}

	inst.mu.Lock()
	if inst.settings.SpeakerHost == "" {
		inst.mu.Unlock()
		c.logger.Warn().Str("instance", id).Err(ErrNoSpeakerHost).Msg("Mute toggle ignored")
		c.alert(inst)
		return
	}
	inst.muted = !inst.muted
	desired := inst.muted
	feedback := inst.feedbackLocked()
	inst.mu.Unlock()

	c.pushFeedback(inst, feedback)
	go c.sendMute(inst, desired)
}

func (c *Controller) sendMute(inst *instance, muted bool) {
	session, err := c.ensureSession(inst)
	if err == nil {
		c.startPolling(inst)
		if err = session.SetMuted(inst.ctx, muted); err != nil {
			c.dropSession(inst, session)
		}
	}
	if err == nil || !inst.alive() || errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Warn().Err(err).Str("instance", inst.id).Bool("muted", muted).Msg("Mute update failed")
	c.alert(inst)
}
