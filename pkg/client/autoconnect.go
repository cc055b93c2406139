// This source code is governed by the MIT license, which can be found in the LICENSE file.

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const introspectTimeout = 5 * time.Second

// AutoConnect joins the sole available channel without the caller naming it.
//
// Already joined, it reports the existing channel and does nothing. With no
// active channels it fails with ErrNoParticipant; with more than one it
// fails with an AmbiguousChannelError listing the candidates so the caller
// can disambiguate with an explicit join.
func (c *Client) AutoConnect(ctx context.Context) (string, error) {
	if ch := c.CurrentChannel(); ch != "" {
		return ch, nil
	}

	channels, err := c.ListChannels(ctx)
	if err != nil {
		return "", errors.Wrap(err, "List channels")
	}

	switch len(channels) {
	case 0:
		return "", ErrNoParticipant
	case 1:
		if err := c.JoinChannel(ctx, channels[0]); err != nil {
			return "", err
		}
		return channels[0], nil
	default:
		return "", &AmbiguousChannelError{Channels: channels}
	}
}

// ListChannels queries the relay's introspection endpoint for the names of
// the active channels.
func (c *Client) ListChannels(ctx context.Context) ([]string, error) {
	endpoint, err := introspectionURL(c.url, "/channels")
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, introspectTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Build channels request")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "Query channels")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("Relay returned %s for channel listing", resp.Status)
	}

	var body struct {
		Channels []string `json:"channels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "Decode channel listing")
	}
	return body.Channels, nil
}

// introspectionURL converts the websocket URL into the relay's HTTP
// introspection URL for the given path.
func introspectionURL(wsURL, path string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", errors.Wrap(err, "Parse relay URL")
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = path
	return u.String(), nil
}
