package client

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/model"
	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/relay"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = ioutil.Discard
	return log
}

// hijackedConns tracks, per test server, the connections handed to websocket
// handlers. httptest stops tracking a connection once it is hijacked, so
// Server.CloseClientConnections cannot sever live websockets; tests that need
// to cut the transport use closeHijacked instead.
var (
	hijackedMTX   sync.Mutex
	hijackedConns = map[*httptest.Server]map[net.Conn]struct{}{}
)

func startRelay(t *testing.T) (*httptest.Server, *relay.Relay, string) {
	t.Helper()
	r := relay.New(testLogger())
	srv := httptest.NewUnstartedServer(r)
	hijackedMTX.Lock()
	hijackedConns[srv] = map[net.Conn]struct{}{}
	hijackedMTX.Unlock()
	srv.Config.ConnState = func(conn net.Conn, state http.ConnState) {
		if state == http.StateHijacked {
			hijackedMTX.Lock()
			hijackedConns[srv][conn] = struct{}{}
			hijackedMTX.Unlock()
		}
	}
	srv.Start()
	t.Cleanup(func() {
		closeHijacked(srv)
		srv.Close()
		hijackedMTX.Lock()
		delete(hijackedConns, srv)
		hijackedMTX.Unlock()
	})
	return srv, r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// closeHijacked severs every websocket connection accepted by srv.
func closeHijacked(srv *httptest.Server) {
	hijackedMTX.Lock()
	conns := hijackedConns[srv]
	hijackedConns[srv] = map[net.Conn]struct{}{}
	hijackedMTX.Unlock()
	for conn := range conns {
		conn.Close()
	}
}

func connectedClient(t *testing.T, wsURL string) *Client {
	t.Helper()
	c := New(testLogger(), wsURL, false)
	t.Cleanup(c.Close)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

// fakePlugin plays the remote participant: it joins a channel and answers
// commands broadcast on it.
type fakePlugin struct {
	t       *testing.T
	ws      *websocket.Conn
	channel string
}

func joinPlugin(t *testing.T, wsURL, channel string) *fakePlugin {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	p := &fakePlugin{t: t, ws: ws, channel: channel}
	p.read() // connected ack
	p.write(model.Envelope{ID: "plugin-join", Type: model.TypeJoin, Channel: channel})
	p.read() // join confirmation
	return p
}

func (p *fakePlugin) read() model.Envelope {
	p.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := p.ws.ReadMessage()
	require.NoError(p.t, err)
	var env model.Envelope
	require.NoError(p.t, json.Unmarshal(data, &env))
	return env
}

func (p *fakePlugin) write(env model.Envelope) {
	data, err := json.Marshal(env)
	require.NoError(p.t, err)
	require.NoError(p.t, p.ws.WriteMessage(websocket.TextMessage, data))
}

// nextCommand reads frames until it finds a broadcast carrying a command.
func (p *fakePlugin) nextCommand() model.Command {
	for {
		env := p.read()
		if env.Type != model.TypeBroadcast {
			continue
		}
		var cmd model.Command
		if json.Unmarshal(env.Message, &cmd) == nil && cmd.Command != "" {
			return cmd
		}
	}
}

func (p *fakePlugin) respond(resp model.Response) {
	raw, err := json.Marshal(resp)
	require.NoError(p.t, err)
	p.write(model.Envelope{Type: model.TypeMessage, Channel: p.channel, Message: raw})
}

func (p *fakePlugin) progress(commandID string, pct float64) {
	raw, _ := json.Marshal(model.Progress{Progress: pct})
	p.write(model.Envelope{ID: commandID, Type: model.TypeProgress, Channel: p.channel, Message: raw})
}

func TestSendCommandNotConnected(t *testing.T) {
	c := New(testLogger(), "ws://127.0.0.1:1", false)
	t.Cleanup(c.Close)

	_, err := c.SendCommand(context.Background(), "get_document_info", nil, 0)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendCommandRequiresChannel(t *testing.T) {
	_, r, wsURL := startRelay(t)
	c := connectedClient(t, wsURL)
	require.Equal(t, ConnectedUnjoined, c.State())

	_, err := c.SendCommand(context.Background(), "get_document_info", nil, 0)
	assert.ErrorIs(t, err, ErrNoChannel)

	// The failed command produced no transport write.
	assert.EqualValues(t, 0, r.Stats().MessagesReceived)
}

func TestJoinChannel(t *testing.T) {
	_, _, wsURL := startRelay(t)
	joinPlugin(t, wsURL, "figma")
	c := connectedClient(t, wsURL)

	require.NoError(t, c.JoinChannel(context.Background(), "figma"))
	assert.Equal(t, ConnectedJoined, c.State())
	assert.Equal(t, "figma", c.CurrentChannel())
}

func TestCommandRoundTrip(t *testing.T) {
	_, _, wsURL := startRelay(t)
	plugin := joinPlugin(t, wsURL, "figma")
	c := connectedClient(t, wsURL)
	require.NoError(t, c.JoinChannel(context.Background(), "figma"))

	go func() {
		cmd := plugin.nextCommand()
		plugin.respond(model.Response{ID: cmd.ID, Result: json.RawMessage(`{"width":800}`)})
	}()

	result, err := c.SendCommand(context.Background(), "get_document_info", map[string]interface{}{"detail": "full"}, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"width":800}`, string(result))
	assert.Equal(t, 0, c.PendingCount())
}

func TestCommandParamsCarryCommandID(t *testing.T) {
	_, _, wsURL := startRelay(t)
	plugin := joinPlugin(t, wsURL, "figma")
	c := connectedClient(t, wsURL)
	require.NoError(t, c.JoinChannel(context.Background(), "figma"))

	commands := make(chan model.Command, 1)
	go func() {
		cmd := plugin.nextCommand()
		commands <- cmd
		plugin.respond(model.Response{ID: cmd.ID, Result: json.RawMessage(`true`)})
	}()

	_, err := c.SendCommand(context.Background(), "delete_node", map[string]interface{}{"nodeId": "1:2"}, 0)
	require.NoError(t, err)

	cmd := <-commands
	assert.Equal(t, "delete_node", cmd.Command)
	assert.Equal(t, "1:2", cmd.Params["nodeId"])
	assert.Equal(t, cmd.ID, cmd.Params["commandId"])
}

func TestCommandError(t *testing.T) {
	_, _, wsURL := startRelay(t)
	plugin := joinPlugin(t, wsURL, "figma")
	c := connectedClient(t, wsURL)
	require.NoError(t, c.JoinChannel(context.Background(), "figma"))

	go func() {
		cmd := plugin.nextCommand()
		plugin.respond(model.Response{ID: cmd.ID, Error: "node not found"})
	}()

	_, err := c.SendCommand(context.Background(), "delete_node", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node not found")
}

func TestCommandTimeout(t *testing.T) {
	_, _, wsURL := startRelay(t)
	joinPlugin(t, wsURL, "figma") // never answers
	c := connectedClient(t, wsURL)
	require.NoError(t, c.JoinChannel(context.Background(), "figma"))

	_, err := c.SendCommand(context.Background(), "get_document_info", nil, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, c.PendingCount())
}

func TestProgressExtendsCommandDeadline(t *testing.T) {
	_, _, wsURL := startRelay(t)
	plugin := joinPlugin(t, wsURL, "figma")
	c := connectedClient(t, wsURL)
	require.NoError(t, c.JoinChannel(context.Background(), "figma"))

	go func() {
		cmd := plugin.nextCommand()
		time.Sleep(80 * time.Millisecond)
		plugin.progress(cmd.ID, 50)
		time.Sleep(120 * time.Millisecond)
		plugin.respond(model.Response{ID: cmd.ID, Result: json.RawMessage(`"exported"`)})
	}()

	// The command outlives its own deadline because progress keeps arriving.
	start := time.Now()
	result, err := c.SendCommand(context.Background(), "export_node_as_image", nil, 150*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, `"exported"`, string(result))
	assert.Greater(t, time.Since(start), 150*time.Millisecond)
}

func TestTransportCloseRejectsAllPending(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	plugin := joinPlugin(t, wsURL, "figma")
	c := connectedClient(t, wsURL)
	require.NoError(t, c.JoinChannel(context.Background(), "figma"))

	failures := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.SendCommand(context.Background(), "get_document_info", nil, 10*time.Second)
			failures <- err
		}()
	}

	// Make sure both commands are in flight before cutting the transport.
	plugin.nextCommand()
	plugin.nextCommand()
	closeHijacked(srv)

	for i := 0; i < 2; i++ {
		select {
		case err := <-failures:
			assert.ErrorIs(t, err, ErrConnClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("pending command not rejected after transport close")
		}
	}
	assert.Equal(t, 0, c.PendingCount())
}

func TestAutoConnectNoChannels(t *testing.T) {
	_, _, wsURL := startRelay(t)
	c := connectedClient(t, wsURL)

	_, err := c.AutoConnect(context.Background())
	assert.ErrorIs(t, err, ErrNoParticipant)
}

func TestAutoConnectSingleChannel(t *testing.T) {
	_, _, wsURL := startRelay(t)
	joinPlugin(t, wsURL, "figma")
	c := connectedClient(t, wsURL)

	joined, err := c.AutoConnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "figma", joined)
	assert.Equal(t, "figma", c.CurrentChannel())

	// Calling again while joined is a no-op success.
	joined, err = c.AutoConnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "figma", joined)
}

func TestAutoConnectAmbiguous(t *testing.T) {
	_, _, wsURL := startRelay(t)
	joinPlugin(t, wsURL, "alpha")
	joinPlugin(t, wsURL, "beta")
	c := connectedClient(t, wsURL)

	_, err := c.AutoConnect(context.Background())
	var ambiguous *AmbiguousChannelError
	require.ErrorAs(t, err, &ambiguous)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, ambiguous.Channels)
	assert.Equal(t, ConnectedUnjoined, c.State())
}
