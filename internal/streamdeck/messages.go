package streamdeck

import (
	"encoding/json"
	"strconv"

	"github.com/strefethen/sonos-dial-go/internal/dial"
)

// Inbound event names.
const (
	EventWillAppear         = "willAppear"
	EventWillDisappear      = "willDisappear"
	EventDialRotate         = "dialRotate"
	EventDialDown           = "dialDown"
	EventTouchTap           = "touchTap"
	EventDidReceiveSettings = "didReceiveSettings"
)

// Outbound event names.
const (
	EventSetFeedback = "setFeedback"
	EventSetSettings = "setSettings"
	EventShowAlert   = "showAlert"
)

// Event is one message from the host application.
type Event struct {
	Event   string          `json:"event"`
	Action  string          `json:"action,omitempty"`
	Context string          `json:"context,omitempty"`
	Device  string          `json:"device,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type eventPayload struct {
	Settings json.RawMessage `json:"settings"`
	Ticks    int             `json:"ticks"`
}

// settings decodes the payload settings, filling defaults for absent fields.
func (p eventPayload) settings() (dial.Settings, error) {
	if len(p.Settings) == 0 || string(p.Settings) == "null" {
		return dial.DefaultSettings(), nil
	}
	var settings dial.Settings
	if err := json.Unmarshal(p.Settings, &settings); err != nil {
		return dial.Settings{}, err
	}
	return settings, nil
}

type registration struct {
	Event string `json:"event"`
	UUID  string `json:"uuid"`
}

type outbound struct {
	Event   string `json:"event"`
	Context string `json:"context"`
	Payload any    `json:"payload,omitempty"`
}

type feedbackText struct {
	Value   string  `json:"value"`
	Opacity float64 `json:"opacity"`
}

type feedbackIndicator struct {
	Value   int     `json:"value"`
	Opacity float64 `json:"opacity"`
}

type feedbackPayload struct {
	Value     feedbackText      `json:"value"`
	Indicator feedbackIndicator `json:"indicator"`
}

func newFeedbackPayload(feedback dial.Feedback) feedbackPayload {
	return feedbackPayload{
		Value:     feedbackText{Value: strconv.Itoa(feedback.Value), Opacity: feedback.Opacity},
		Indicator: feedbackIndicator{Value: feedback.Value, Opacity: feedback.Opacity},
	}
}

// Info is the launch description passed with -info.
type Info struct {
	Application struct {
		Language string `json:"language"`
		Platform string `json:"platform"`
		Version  string `json:"version"`
	} `json:"application"`
	Plugin struct {
		UUID    string `json:"uuid"`
		Version string `json:"version"`
	} `json:"plugin"`
	Devices []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type int    `json:"type"`
	} `json:"devices"`
}

// ParseInfo decodes the -info argument. An empty argument yields a zero Info.
func ParseInfo(raw string) (Info, error) {
	var info Info
	if raw == "" {
		return info, nil
	}
	err := json.Unmarshal([]byte(raw), &info)
	return info, err
}
