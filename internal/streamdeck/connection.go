// Package streamdeck speaks the host application's WebSocket protocol: it
// registers the plugin, turns inbound events into dial operations and sends
// display updates back.
package streamdeck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/strefethen/sonos-dial-go/internal/dial"
)

const writeTimeout = 5 * time.Second

// ErrClosed is returned by writes after the connection has been closed.
var ErrClosed = errors.New("host connection closed")

// Handler receives dial events.
type Handler interface {
	Appear(id string, settings dial.Settings)
	Rotate(id string, ticks int, settings dial.Settings)
	Press(id string, settings dial.Settings)
	Tap(id string, settings dial.Settings)
	SettingsChanged(id string, settings dial.Settings)
	Disappear(id string)
}

// Connection is the plugin's link to the host application. It implements
// dial.HostUI.
type Connection struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
	closed  bool
}

var _ dial.HostUI = (*Connection)(nil)

// Dial connects to the host application listening on 127.0.0.1:port.
func Dial(ctx context.Context, port int, logger zerolog.Logger) (*Connection, error) {
	url := "ws://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to host: %w", err)
	}
	return newConnection(conn, logger), nil
}

func newConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		logger: logger.With().Str("component", "streamdeck").Logger(),
	}
}

// Register announces the plugin. It must be the first message sent.
func (c *Connection) Register(event, pluginUUID string) error {
	return c.writeJSON(registration{Event: event, UUID: pluginUUID})
}

// Run reads events and dispatches them to handler until the socket closes or
// ctx is done. A socket closed by either side ends Run without error.
func (c *Connection) Run(ctx context.Context, handler Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read from host: %w", err)
		}
		c.dispatch(message, handler)
	}
}

func (c *Connection) dispatch(message []byte, handler Handler) {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse host message")
		return
	}

	if event.Event == EventWillDisappear {
		handler.Disappear(event.Context)
		return
	}

	switch event.Event {
	case EventWillAppear, EventDialRotate, EventDialDown, EventTouchTap, EventDidReceiveSettings:
	default:
		c.logger.Debug().Str("event", event.Event).Msg("Ignoring host event")
		return
	}

	var payload eventPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			c.logger.Warn().Err(err).Str("event", event.Event).Msg("Failed to parse event payload")
			return
		}
	}
	settings, err := payload.settings()
	if err != nil {
		c.logger.Warn().Err(err).Str("event", event.Event).Msg("Failed to parse settings")
		return
	}

	switch event.Event {
	case EventWillAppear:
		handler.Appear(event.Context, settings)
	case EventDialRotate:
		handler.Rotate(event.Context, payload.Ticks, settings)
	case EventDialDown:
		handler.Press(event.Context, settings)
	case EventTouchTap:
		handler.Tap(event.Context, settings)
	case EventDidReceiveSettings:
		handler.SettingsChanged(event.Context, settings)
	}
}

// SetFeedback updates the dial's value text and indicator bar.
func (c *Connection) SetFeedback(instanceID string, feedback dial.Feedback) error {
	return c.writeJSON(outbound{
		Event:   EventSetFeedback,
		Context: instanceID,
		Payload: newFeedbackPayload(feedback),
	})
}

// PersistSettings stores settings with the host application.
func (c *Connection) PersistSettings(instanceID string, settings dial.Settings) error {
	return c.writeJSON(outbound{
		Event:   EventSetSettings,
		Context: instanceID,
		Payload: settings,
	})
}

// ShowAlert flashes the host's failure indicator on the dial.
func (c *Connection) ShowAlert(instanceID string) error {
	return c.writeJSON(outbound{Event: EventShowAlert, Context: instanceID})
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once.
func (c *Connection) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Connection) isClosed() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closed
}

func (c *Connection) writeJSON(message any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(message)
}
