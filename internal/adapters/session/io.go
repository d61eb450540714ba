package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/wire"
)

func newRef() string { return uuid.NewString() }

func (s *wsSession) writePump(ctx context.Context, pingPeriod time.Duration) {
	defer close(s.writerDone)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	ping, _ := json.Marshal(wire.Envelope{Type: wire.TypePing})

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				s.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				s.log.Error().Err(err).Msg("writePump ping error")
				return
			}
		}
	}
}

func (s *wsSession) readPump(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		wasClosed := s.closed
		s.closed = true
		s.mu.Unlock()
		s.failPending(core.ErrDisconnected)
		s.closePeers()
		if !wasClosed {
			s.log.Info().Msg("connection lost")
			// the session itself went away; report the local connection
			for _, h := range s.disconnectHandlers() {
				h(s.LocalConnection())
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				if !s.isClosed() {
					s.log.Error().Err(err).Msg("readPump read error")
				}
				return
			}
			s.handleFrame(ctx, data)
		}
	}
}

func (s *wsSession) handleFrame(ctx context.Context, data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Error().Err(err).Msg("bad frame")
		return
	}

	switch env.Type {
	case wire.TypeAck:
		s.resolvePending(env.Ref, nil)
	case wire.TypeError:
		var e wire.Error
		_ = json.Unmarshal(data, &e)
		if e.Ref != "" {
			s.resolvePending(e.Ref, codeToErr(e))
			return
		}
		s.log.Warn().Str("code", e.Code).Str("detail", e.Error).Msg("relay error")
	case wire.TypeSignal:
		var sig wire.Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			s.log.Error().Err(err).Msg("bad signal frame")
			return
		}
		ev := core.SignalEvent{Type: sig.SignalType, From: sig.From, Data: sig.Data}
		for _, h := range s.signalHandlers(sig.SignalType) {
			h(ev)
		}
	case wire.TypeMemberJoined:
		s.handleMemberJoined(data)
	case wire.TypeMemberLeft:
		s.handleMemberLeft(data)
	case wire.TypeStreamCreated:
		s.handleStreamEvent(data, s.streamCreatedHandlers())
	case wire.TypeStreamDestroyed:
		s.handleStreamEvent(data, s.streamDestroyedHandlers())
	case wire.TypeOffer, wire.TypeAnswer, wire.TypeCandidate:
		s.handleRTC(ctx, data)
	case wire.TypePong:
	default:
		s.log.Warn().Str("type", env.Type).Msg("unknown frame")
	}
}

func (s *wsSession) handleMemberJoined(data []byte) {
	var ev wire.MemberEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Error().Err(err).Msg("bad member event")
		return
	}
	s.mu.Lock()
	if _, ok := s.remotes[ev.Connection.ID]; !ok {
		s.order = append(s.order, ev.Connection.ID)
	}
	s.remotes[ev.Connection.ID] = connFromWire(ev.Connection)
	s.mu.Unlock()
	s.log.Debug().Str("conn", string(ev.Connection.ID)).Msg("member joined")
}

func (s *wsSession) handleMemberLeft(data []byte) {
	var ev wire.MemberEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Error().Err(err).Msg("bad member event")
		return
	}
	id := ev.Connection.ID

	s.mu.Lock()
	conn, known := s.remotes[id]
	delete(s.remotes, id)
	for i, cid := range s.order {
		if cid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if !known {
		conn = connFromWire(ev.Connection)
	}

	s.dropPeer(id)
	for _, h := range s.disconnectHandlers() {
		h(conn)
	}
	s.log.Debug().Str("conn", string(id)).Msg("member left")
}

func (s *wsSession) handleStreamEvent(data []byte, handlers []func(core.Connection)) {
	var ev wire.MemberEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Error().Err(err).Msg("bad stream event")
		return
	}
	conn := connFromWire(ev.Connection)

	s.mu.Lock()
	if _, ok := s.remotes[conn.ID]; ok {
		s.remotes[conn.ID] = conn
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(conn)
	}
}

func (s *wsSession) signalHandlers(signalType string) []func(core.SignalEvent) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	out := make([]func(core.SignalEvent), len(s.signals[signalType]))
	copy(out, s.signals[signalType])
	return out
}

func (s *wsSession) streamCreatedHandlers() []func(core.Connection) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	out := make([]func(core.Connection), len(s.streamCreated))
	copy(out, s.streamCreated)
	return out
}

func (s *wsSession) streamDestroyedHandlers() []func(core.Connection) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	out := make([]func(core.Connection), len(s.streamDestroyed))
	copy(out, s.streamDestroyed)
	return out
}

func (s *wsSession) disconnectHandlers() []func(core.Connection) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	out := make([]func(core.Connection), len(s.disconnected))
	copy(out, s.disconnected)
	return out
}

func (s *wsSession) dataConnHandlers() []func(domain.ConnectionID, core.DataConnection) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	out := make([]func(domain.ConnectionID, core.DataConnection), len(s.dataConn))
	copy(out, s.dataConn)
	return out
}

func (s *wsSession) resolvePending(ref string, err error) {
	s.pendingMu.Lock()
	ch, ok := s.pending[ref]
	delete(s.pending, ref)
	s.pendingMu.Unlock()
	if ok {
		ch <- err
	}
}

func (s *wsSession) failPending(err error) {
	s.pendingMu.Lock()
	for ref, ch := range s.pending {
		delete(s.pending, ref)
		ch <- err
	}
	s.pendingMu.Unlock()
}
