package dial

import (
	"encoding/json"
	"strings"

	"github.com/strefethen/sonos-dial-go/internal/sonos"
)

const (
	DefaultVolumeStep = 5
	DefaultValue      = 50

	MinVolume = 0
	MaxVolume = 100

	mutedOpacity   = 0.5
	unmutedOpacity = 1.0
)

// Settings is the per-dial configuration persisted by the host application.
type Settings struct {
	SpeakerHost       string `json:"speakerHost,omitempty"`
	VolumeStep        int    `json:"volumeStep"`
	Value             int    `json:"value"`
	SingleSpeakerMode bool   `json:"singleSpeakerMode"`
}

// DefaultSettings returns the settings of a freshly placed dial.
func DefaultSettings() Settings {
	return Settings{
		VolumeStep: DefaultVolumeStep,
		Value:      DefaultValue,
	}
}

// UnmarshalJSON fills absent fields with defaults.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	decoded := plain(DefaultSettings())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = Settings(decoded)
	return nil
}

// Normalized trims the host, clamps the value and replaces a non-positive step.
func (s Settings) Normalized() Settings {
	s.SpeakerHost = strings.TrimSpace(s.SpeakerHost)
	if s.VolumeStep <= 0 {
		s.VolumeStep = DefaultVolumeStep
	}
	s.Value = Clamp(s.Value)
	return s
}

// Mode maps the single-speaker flag to a session mode.
func (s Settings) Mode() sonos.Mode {
	if s.SingleSpeakerMode {
		return sonos.ModeSingle
	}
	return sonos.ModeGroup
}

// Clamp bounds a volume to [0, 100].
func Clamp(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// Feedback is what the dial's display shows.
type Feedback struct {
	Value   int
	Opacity float64
}

// FeedbackFor dims the display while muted.
func FeedbackFor(volume int, muted bool) Feedback {
	opacity := unmutedOpacity
	if muted {
		opacity = mutedOpacity
	}
	return Feedback{Value: Clamp(volume), Opacity: opacity}
}
