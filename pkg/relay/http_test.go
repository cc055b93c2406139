package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/model"
)

func dialTest(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) model.Envelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var env model.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func writeEnvelope(t *testing.T, ws *websocket.Conn, env model.Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func TestConnectAcknowledged(t *testing.T) {
	r := New(testLogger())
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws := dialTest(t, srv)
	ack := readEnvelope(t, ws)
	assert.Equal(t, model.TypeSystem, ack.Type)
}

func TestEndToEndJoinAndBroadcast(t *testing.T) {
	r := New(testLogger())
	srv := httptest.NewServer(r)
	defer srv.Close()

	plugin := dialTest(t, srv)
	readEnvelope(t, plugin) // connected ack
	writeEnvelope(t, plugin, model.Envelope{ID: "join-1", Type: model.TypeJoin, Channel: "figma"})
	confirm := readEnvelope(t, plugin)
	assert.Equal(t, model.TypeSystem, confirm.Type)

	cli := dialTest(t, srv)
	readEnvelope(t, cli) // connected ack
	writeEnvelope(t, cli, model.Envelope{ID: "join-2", Type: model.TypeJoin, Channel: "figma"})
	readEnvelope(t, cli) // join confirmation

	notice := readEnvelope(t, plugin)
	assert.Equal(t, model.TypeSystem, notice.Type)
	assert.Equal(t, "figma", notice.Channel)

	payload := json.RawMessage(`{"id":"cmd-1","command":"get_document_info"}`)
	writeEnvelope(t, cli, model.Envelope{ID: "cmd-1", Type: model.TypeMessage, Channel: "figma", Message: payload})

	got := readEnvelope(t, plugin)
	assert.Equal(t, model.TypeBroadcast, got.Type)
	assert.JSONEq(t, string(payload), string(got.Message))

	// The sender receives its own echo.
	echo := readEnvelope(t, cli)
	assert.Equal(t, model.TypeBroadcast, echo.Type)
}

func TestCloseRemovesFromChannels(t *testing.T) {
	r := New(testLogger())
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws := dialTest(t, srv)
	readEnvelope(t, ws)
	writeEnvelope(t, ws, model.Envelope{Type: model.TypeJoin, Channel: "figma"})
	readEnvelope(t, ws)
	require.Equal(t, 1, r.MemberCount("figma"))

	ws.Close()
	require.Eventually(t, func() bool {
		return len(r.ChannelNames()) == 0
	}, 2*time.Second, 10*time.Millisecond, "channel should be destroyed on close")
	assert.EqualValues(t, 0, r.Stats().ActiveConnections)
}

func TestStatusEndpoint(t *testing.T) {
	r := New(testLogger())
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws := dialTest(t, srv)
	readEnvelope(t, ws)
	writeEnvelope(t, ws, model.Envelope{Type: model.TypeJoin, Channel: "figma"})
	readEnvelope(t, ws)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, []string{"figma"}, status.Channels)
	assert.EqualValues(t, 1, status.Stats.ActiveConnections)
}

func TestChannelsEndpoint(t *testing.T) {
	r := New(testLogger())
	r.CurrentChannel = func() string { return "figma" }
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/channels")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body ChannelsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Channels)
	assert.Equal(t, "figma", body.CurrentChannel)
}

func TestStatsPassword(t *testing.T) {
	r := New(testLogger())
	r.StatsPassword = "sekrit"
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("X-Stats-Password", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
