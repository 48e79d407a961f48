package streamdeck

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-dial-go/internal/dial"
)

type call struct {
	op       string
	id       string
	ticks    int
	settings dial.Settings
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []call
}

func (h *recordingHandler) add(c call) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, c)
}

func (h *recordingHandler) list() []call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call(nil), h.calls...)
}

func (h *recordingHandler) Appear(id string, s dial.Settings) {
	h.add(call{op: "appear", id: id, settings: s})
}

func (h *recordingHandler) Rotate(id string, ticks int, s dial.Settings) {
	h.add(call{op: "rotate", id: id, ticks: ticks, settings: s})
}

func (h *recordingHandler) Press(id string, s dial.Settings) {
	h.add(call{op: "press", id: id, settings: s})
}

func (h *recordingHandler) Tap(id string, s dial.Settings) {
	h.add(call{op: "tap", id: id, settings: s})
}

func (h *recordingHandler) SettingsChanged(id string, s dial.Settings) {
	h.add(call{op: "settings", id: id, settings: s})
}

func (h *recordingHandler) Disappear(id string) {
	h.add(call{op: "disappear", id: id})
}

// fakeHost is an in-process host application.
type fakeHost struct {
	server   *httptest.Server
	accepted chan *websocket.Conn
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	host := &fakeHost{accepted: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{}
	host.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		host.accepted <- conn
	}))
	t.Cleanup(host.server.Close)
	return host
}

func (h *fakeHost) port(t *testing.T) int {
	t.Helper()
	idx := strings.LastIndex(h.server.URL, ":")
	port, err := strconv.Atoi(h.server.URL[idx+1:])
	require.NoError(t, err)
	return port
}

func (h *fakeHost) connect(t *testing.T) (*Connection, *websocket.Conn) {
	t.Helper()
	conn, err := Dial(context.Background(), h.port(t), zerolog.Nop())
	require.NoError(t, err)

	select {
	case server := <-h.accepted:
		t.Cleanup(func() { server.Close() })
		t.Cleanup(func() { conn.Close() })
		return conn, server
	case <-time.After(2 * time.Second):
		t.Fatal("host never accepted the connection")
		return nil, nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRegister(t *testing.T) {
	conn, server := newFakeHost(t).connect(t)

	require.NoError(t, conn.Register("registerPlugin", "plugin-uuid"))

	assert.Equal(t, map[string]any{"event": "registerPlugin", "uuid": "plugin-uuid"}, readMessage(t, server))
}

func TestSetFeedbackPayload(t *testing.T) {
	conn, server := newFakeHost(t).connect(t)

	require.NoError(t, conn.SetFeedback("ctx-1", dial.FeedbackFor(35, true)))

	msg := readMessage(t, server)
	assert.Equal(t, "setFeedback", msg["event"])
	assert.Equal(t, "ctx-1", msg["context"])
	payload, err := json.Marshal(msg["payload"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":{"value":"35","opacity":0.5},"indicator":{"value":35,"opacity":0.5}}`, string(payload))
}

func TestPersistSettingsAndShowAlert(t *testing.T) {
	conn, server := newFakeHost(t).connect(t)

	require.NoError(t, conn.PersistSettings("ctx-1", dial.Settings{SpeakerHost: "10.0.0.5", VolumeStep: 2, Value: 60}))
	require.NoError(t, conn.ShowAlert("ctx-1"))

	settings := readMessage(t, server)
	assert.Equal(t, "setSettings", settings["event"])
	assert.Equal(t, map[string]any{
		"speakerHost":       "10.0.0.5",
		"volumeStep":        float64(2),
		"value":             float64(60),
		"singleSpeakerMode": false,
	}, settings["payload"])

	alert := readMessage(t, server)
	assert.Equal(t, map[string]any{"event": "showAlert", "context": "ctx-1"}, alert)
}

func TestRun_DispatchesEvents(t *testing.T) {
	conn, server := newFakeHost(t).connect(t)
	handler := &recordingHandler{}

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(context.Background(), handler) }()

	events := []string{
		`{"event":"willAppear","context":"ctx-1","payload":{"settings":{"speakerHost":"10.0.0.5"}}}`,
		`{"event":"dialRotate","context":"ctx-1","payload":{"settings":{"speakerHost":"10.0.0.5","volumeStep":2},"ticks":-3}}`,
		`{"event":"dialDown","context":"ctx-1","payload":{"settings":{}}}`,
		`{"event":"touchTap","context":"ctx-1","payload":{"settings":{},"tapPos":[10,20]}}`,
		`{"event":"keyDown","context":"ctx-1","payload":{}}`,
		`not json`,
		`{"event":"didReceiveSettings","context":"ctx-1","payload":{"settings":{"speakerHost":"10.0.0.6","singleSpeakerMode":true}}}`,
		`{"event":"willDisappear","context":"ctx-1","payload":{"settings":{}}}`,
	}
	for _, event := range events {
		require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(event)))
	}

	require.Eventually(t, func() bool { return len(handler.list()) == 6 }, 2*time.Second, 5*time.Millisecond)
	calls := handler.list()

	assert.Equal(t, "appear", calls[0].op)
	assert.Equal(t, "10.0.0.5", calls[0].settings.SpeakerHost)
	assert.Equal(t, dial.DefaultVolumeStep, calls[0].settings.VolumeStep)

	assert.Equal(t, "rotate", calls[1].op)
	assert.Equal(t, -3, calls[1].ticks)
	assert.Equal(t, 2, calls[1].settings.VolumeStep)

	assert.Equal(t, "press", calls[2].op)
	assert.Equal(t, "tap", calls[3].op)

	assert.Equal(t, "settings", calls[4].op)
	assert.True(t, calls[4].settings.SingleSpeakerMode)

	assert.Equal(t, call{op: "disappear", id: "ctx-1"}, calls[5])

	require.NoError(t, server.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the host closed")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	conn, _ := newFakeHost(t).connect(t)
	ctx, cancel := context.WithCancel(context.Background())

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(ctx, &recordingHandler{}) }()
	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.ErrorIs(t, conn.ShowAlert("ctx-1"), ErrClosed)
}

func TestParseInfo(t *testing.T) {
	info, err := ParseInfo(`{"application":{"platform":"mac","version":"6.5.0"},"plugin":{"uuid":"com.example.sonos","version":"1.2.0"},"devices":[{"id":"D1","name":"Stream Deck +","type":7}]}`)
	require.NoError(t, err)
	assert.Equal(t, "6.5.0", info.Application.Version)
	assert.Equal(t, "1.2.0", info.Plugin.Version)
	require.Len(t, info.Devices, 1)
	assert.Equal(t, 7, info.Devices[0].Type)

	_, err = ParseInfo("{")
	assert.Error(t, err)

	info, err = ParseInfo("")
	require.NoError(t, err)
	assert.Empty(t, info.Plugin.UUID)
}
