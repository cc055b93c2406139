// This source code is governed by the MIT license, which can be found in the LICENSE file.

package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The plugin connects from the design tool's own origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status         string   `json:"status"`
	Uptime         string   `json:"uptime"`
	Channels       []string `json:"channels"`
	CurrentChannel string   `json:"currentChannel"`
	Stats          Stats    `json:"stats"`
}

// ChannelsResponse is the body of GET /channels.
type ChannelsResponse struct {
	Channels       []string `json:"channels"`
	CurrentChannel string   `json:"currentChannel"`
}

// ListenAndServe listens on addr and serves websocket upgrades on / and the
// introspection endpoints on /status and /channels.
func (r *Relay) ListenAndServe(addr string) error {
	r.log.WithFields(logrus.Fields{
		"addr": addr,
	}).Info("Listening for incoming connections")
	return errors.Wrap(http.ListenAndServe(addr, r), "Listen")
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/":
		r.serveWS(w, req)
	case "/status":
		r.serveStatus(w, req)
	case "/channels":
		r.serveChannels(w, req)
	default:
		http.NotFound(w, req)
	}
}

func (r *Relay) serveWS(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.errors.Add(1)
		r.log.WithFields(logrus.Fields{
			"remote": req.RemoteAddr,
			"error":  err,
		}).Error("Upgrade failed")
		return
	}

	r.mtx.Lock()
	id := r.nextConnID
	r.nextConnID++
	r.mtx.Unlock()

	c := newConn(r, ws, id)
	r.addConn(c)
	r.log.WithFields(logrus.Fields{
		"conn":   id,
		"remote": req.RemoteAddr,
	}).Info("Connected")

	c.sendEnvelope(model.System("Connected to relay; join a channel to start messaging"))
}

func (r *Relay) serveStatus(w http.ResponseWriter, req *http.Request) {
	if !r.authorized(w, req) {
		return
	}
	writeJSON(w, StatusResponse{
		Status:         "running",
		Uptime:         r.Stats().Uptime.String(),
		Channels:       r.ChannelNames(),
		CurrentChannel: r.currentChannel(),
		Stats:          r.Stats(),
	})
}

func (r *Relay) serveChannels(w http.ResponseWriter, req *http.Request) {
	if !r.authorized(w, req) {
		return
	}
	writeJSON(w, ChannelsResponse{
		Channels:       r.ChannelNames(),
		CurrentChannel: r.currentChannel(),
	})
}

func (r *Relay) currentChannel() string {
	if r.CurrentChannel == nil {
		return ""
	}
	return r.CurrentChannel()
}

func (r *Relay) authorized(w http.ResponseWriter, req *http.Request) bool {
	if r.StatsPassword == "" || req.Header.Get("X-Stats-Password") == r.StatsPassword {
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "stats password required"})
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
