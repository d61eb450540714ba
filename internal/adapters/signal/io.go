package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/wire"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
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

func (ctl *SignalWSController) readPump(ctx context.Context, st *connState) {
	defer func() {
		log.Info().Str("module", "signal").Str("email", st.account.Profile.Email).Msg("readPump closing")
		ctl.cleanup(st)
		st.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			if ctl.PingPeriod > 0 {
				_ = st.ws.conn.SetReadDeadline(time.Now().Add(2 * ctl.PingPeriod))
			}
			_, data, err := st.ws.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			ctl.handleFrame(st, data)
		}
	}
}

func (ctl *SignalWSController) handleFrame(st *connState, data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case wire.TypeJoin:
		ctl.handleJoin(st, data)
	case wire.TypeLeave:
		ctl.handleLeave(st, env.Ref)
	case wire.TypePublish:
		ctl.handlePublish(st, data)
	case wire.TypeUnpublish:
		ctl.handleUnpublish(st, env.Ref)
	case wire.TypeSignal:
		ctl.handleSignalFrame(st, data)
	case wire.TypePing:
		ctl.handlePing(st)
	case wire.TypeOffer, wire.TypeAnswer, wire.TypeCandidate:
		ctl.handleRTC(st, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown frame")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendAck(c *WsSignalConn, ref string) {
	if ref == "" {
		return
	}
	ctl.sendJSON(c, wire.Ack{Type: wire.TypeAck, Ref: ref})
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, ref, code, detail string) {
	ctl.sendJSON(c, wire.Error{Type: wire.TypeError, Ref: ref, Code: code, Error: detail})
}

func (ctl *SignalWSController) handlePing(st *connState) {
	ctl.sendJSON(st.ws, wire.Envelope{Type: wire.TypePong})
}
