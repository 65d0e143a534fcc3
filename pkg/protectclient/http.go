// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package protectclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/moul/http2curl"
	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/logger"
	"github.com/kestrelcove/protectbackup/pkg/secrets"
)

// authHeaderPattern and passwordFieldPattern mask the two places a curl
// repro command can carry secret material (spec §9 "never written to
// logs"): the bearer token header and the login request's password field.
var (
	authHeaderPattern    = regexp.MustCompile(`(-H ['"]Authorization: )[^'"]*(['"])`)
	passwordFieldPattern = regexp.MustCompile(`("password"\s*:\s*\\?")[^'"]*(\\?['"])`)
)

// redactCurl masks secret material from a generated curl command before it
// is logged at verbose level.
func redactCurl(cmd string) string {
	cmd = authHeaderPattern.ReplaceAllString(cmd, "${1}REDACTED${2}")
	cmd = passwordFieldPattern.ReplaceAllString(cmd, "${1}REDACTED${2}")
	return cmd
}

// Config configures a REST+WebSocket ProtectClient.
type Config struct {
	Address   string
	Port      int
	Username  string
	Password  secrets.Sealed
	VerifySSL bool
}

// Client is the concrete ProtectClient implementation: REST calls for
// bootstrap/list/fetch, a WebSocket loop for the push stream, and an
// arc-swap-style session token shared across both.
type Client struct {
	cfg        Config
	httpClient *http.Client
	token      atomic.Pointer[string]
}

// New constructs a Client. Bootstrap must be called before any other method
// to obtain the session token.
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !cfg.VerifySSL {
		transport.TLSClientConfig = insecureTLSConfig()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
	}
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("https://%s:%d", c.cfg.Address, c.cfg.Port)
}

func (c *Client) setToken(tok string) {
	c.token.Store(&tok)
}

func (c *Client) authHeader() string {
	tok := c.token.Load()
	if tok == nil {
		return ""
	}
	return "Bearer " + *tok
}

// bootstrapResponse is the shape of the controller's login+bootstrap reply.
type bootstrapResponse struct {
	Token   string `json:"token"`
	Cameras []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"cameras"`
}

// Bootstrap authenticates with username/password and retrieves the camera list.
func (c *Client) Bootstrap(ctx context.Context) ([]Camera, error) {
	body := map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password.Value(),
	}
	raw, err := c.request(ctx, http.MethodPost, "/api/auth/login", body, nil)
	if err != nil {
		return nil, errors.Wrap(err, "bootstrap")
	}
	var resp bootstrapResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "decode bootstrap response")
	}
	c.setToken(resp.Token)

	cameras := make([]Camera, 0, len(resp.Cameras))
	for _, cam := range resp.Cameras {
		cameras = append(cameras, Camera{ID: cam.ID, Name: cam.Name})
	}
	return cameras, nil
}

type rawEvent struct {
	EventID string `json:"id"`
	Camera  string `json:"camera"`
	Type    string `json:"type"`
	Start   int64  `json:"start"`
	End     *int64 `json:"end,omitempty"`
}

func (e rawEvent) toEvent() Event {
	ev := Event{
		EventID:       e.EventID,
		CameraID:      e.Camera,
		DetectionType: e.Type,
		Start:         time.Unix(e.Start, 0).UTC(),
		Closed:        e.End != nil,
	}
	if e.End != nil {
		end := time.Unix(*e.End, 0).UTC()
		ev.End = &end
	}
	return ev
}

// ListEvents queries the event-history API over [from, to).
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	query := url.Values{}
	query.Set("start", strconv.FormatInt(from.Unix(), 10))
	query.Set("end", strconv.FormatInt(to.Unix(), 10))
	raw, err := c.request(ctx, http.MethodGet, "/api/events?"+query.Encode(), nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list_events")
	}
	var rawEvents []rawEvent
	if err := json.Unmarshal(raw, &rawEvents); err != nil {
		return nil, errors.Wrap(err, "decode list_events response")
	}
	events := make([]Event, len(rawEvents))
	for i, re := range rawEvents {
		events[i] = re.toEvent()
	}
	return events, nil
}

// FetchClip streams the clip bytes for eventID over [start, end).
func (c *Client) FetchClip(ctx context.Context, eventID string, start, end time.Time) (io.ReadCloser, error) {
	query := url.Values{}
	query.Set("start", strconv.FormatInt(start.Unix(), 10))
	query.Set("end", strconv.FormatInt(end.Unix(), 10))
	path := fmt.Sprintf("/api/events/%s/clip?%s", eventID, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create fetch_clip request")
	}
	req.Header.Set("Authorization", c.authHeader())

	command, _ := http2curl.GetCurlCommand(req)
	logger.V(3).InfoContextf(ctx, "fetch_clip request: %s", redactCurl(command.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch_clip request failed")
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		return nil, ErrClipMissing
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("fetch_clip: unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	return resp.Body, nil
}

// ErrClipMissing signals the controller reports the clip is permanently
// gone (spec §4.5 "skip-missing").
var ErrClipMissing = errors.New("clip not found on controller")

// request issues a single REST call; no retry here, callers (pkg/retry) own
// the retry policy per spec §4.5/§7.
func (c *Client) request(ctx context.Context, method, path string, body interface{}, headers map[string]string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		bodyReader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.authHeader(); tok != "" {
		req.Header.Set("Authorization", tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	command, _ := http2curl.GetCurlCommand(req)
	logger.V(3).InfoContextf(ctx, "request: %s", redactCurl(command.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("http response %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
