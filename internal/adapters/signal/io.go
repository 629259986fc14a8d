package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

func (ctl *RelayWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump drains one connection sequentially; this is what gives the
// per-sender delivery ordering guarantee.
func (ctl *RelayWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		ctl.Relay.Disconnect(sid)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(sid)
		}
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			if done := ctl.handleFrame(sid, data); done {
				return
			}
		}
	}
}

// handleFrame dispatches one inbound frame. It reports true when the
// participant asked to end the call.
func (ctl *RelayWSController) handleFrame(sid core.SessionID, data []byte) bool {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		return false
	}

	switch env.Type {
	case core.TypeSignal:
		ctl.handleSignal(sid, data)
	case core.TypeEndCall:
		return true
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown frame")
	}
	return false
}

func (ctl *RelayWSController) handleSignal(sid core.SessionID, data []byte) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("rate limited, dropping signal")
		return
	}

	var msg core.SignalMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad signal payload")
		return
	}
	if msg.Target == "" {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("signal without target")
		return
	}
	switch msg.Kind {
	case core.SignalOffer, core.SignalAnswer, core.SignalCandidate:
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("kind", string(msg.Kind)).Msg("unknown signal kind")
		return
	}

	ctl.Relay.Signal(sid, msg)
}
