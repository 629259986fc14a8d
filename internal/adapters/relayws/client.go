// Package relayws is the dialer side of the relay transport: it turns wire
// frames into client events and client signals into wire frames.
package relayws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/client"
	"github.com/dkeye/Meet/internal/core"
)

const writeWait = 5 * time.Second

// Client is one participant's long-lived connection to the relay.
// It implements client.Signaler.
type Client struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the relay's signal endpoint. serverURL is the http(s)
// base of the relay; room and name are passed as connect parameters.
func Dial(ctx context.Context, serverURL, room, name string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/api/ws/signal"
	q := u.Query()
	q.Set("room", room)
	q.Set("name", name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Pump reads relay frames and pushes them onto the manager's event stream
// until the connection dies. Connection loss is surfaced as a Hangup, which
// the manager treats like an explicit end-call.
func (c *Client) Pump(ctx context.Context, mgr *client.Manager) {
	defer func() {
		mgr.Push(client.Hangup{})
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "relayws").Msg("read error")
				return
			}
			c.dispatch(mgr, data)
		}
	}
}

func (c *Client) dispatch(mgr *client.Manager, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "relayws").Msg("bad json")
		return
	}

	switch env.Type {
	case core.TypeRoomMembers:
		var msg core.RoomMembersMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "relayws").Msg("bad room-members")
			return
		}
		mgr.Push(client.RoomMembers{Self: msg.Self, Members: msg.Members})
	case core.TypeSignal:
		var msg core.SignalMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "relayws").Msg("bad signal")
			return
		}
		mgr.Push(client.Signal{Kind: msg.Kind, Sender: msg.Sender, Payload: msg.Payload})
	case core.TypePeerLeft:
		var msg core.PeerLeftMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "relayws").Msg("bad peer-left")
			return
		}
		mgr.Push(client.PeerLeft{SID: msg.SID})
	default:
		log.Warn().Str("module", "relayws").Str("type", env.Type).Msg("unknown frame")
	}
}

// Signal sends one routed handshake message to the relay.
func (c *Client) Signal(kind core.SignalKind, target core.SessionID, payload json.RawMessage) error {
	return c.send(core.SignalMsg{
		Type:    core.TypeSignal,
		Kind:    kind,
		Target:  target,
		Payload: payload,
	})
}

// EndCall asks the relay to run the same cleanup as an abrupt disconnect.
func (c *Client) EndCall() error {
	return c.send(map[string]string{"type": core.TypeEndCall})
}

func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
