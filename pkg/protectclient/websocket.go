// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package protectclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/logger"
)

// wsIdleTimeout forces a reconnect if no message (including pings) arrives
// within this window (spec §5 "Timeouts").
const wsIdleTimeout = 90 * time.Second

type wsMessage struct {
	Action string   `json:"action"` // add | update | close
	Event  rawEvent `json:"event"`
}

// SubscribeEvents opens the controller's push WebSocket and translates
// add/update/close messages into Events. The returned channel is closed
// when the connection drops or ctx is canceled; the caller (the ingestor)
// is responsible for triggering a reconnect-and-catch-up pull.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, error) {
	url := fmt.Sprintf("wss://%s:%d/api/ws/events", c.cfg.Address, c.cfg.Port)
	header := http.Header{}
	if tok := c.authHeader(); tok != "" {
		header.Set("Authorization", tok)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	if !c.cfg.VerifySSL {
		dialer.TLSClientConfig = insecureTLSConfig()
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errors.Wrap(err, "dial controller websocket")
	}

	out := make(chan Event, 64)
	go c.readLoop(ctx, conn, out)
	return out, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Event) {
	defer close(out)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsIdleTimeout)); err != nil {
			logger.WarnContextf(ctx, "set websocket read deadline: %s", err)
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.WarnContextf(ctx, "controller websocket read failed, reconnect required: %s", err)
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.WarnContextf(ctx, "discarding malformed websocket message: %s", err)
			continue
		}
		ev := msg.Event.toEvent()
		if msg.Action == "close" {
			ev.Closed = true
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
