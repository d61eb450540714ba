package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/wire"
)

// handleSignalFrame routes one typed signal to its recipients. An empty
// To list broadcasts to every other session member.
func (ctl *SignalWSController) handleSignalFrame(st *connState, data []byte) {
	var p wire.Signal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad signal payload")
		ctl.sendError(st.ws, "", wire.CodeBadPayload, "bad signal payload")
		return
	}
	id, room, _, ok := st.joined()
	if !ok {
		ctl.sendError(st.ws, p.Ref, wire.CodeNotJoined, "join first")
		return
	}
	if !ctl.Limiter.Allow(id) {
		ctl.sendError(st.ws, p.Ref, wire.CodeBadPayload, "rate limited")
		return
	}

	out, err := json.Marshal(wire.Signal{
		Type:       wire.TypeSignal,
		SignalType: p.SignalType,
		From:       id,
		Data:       p.Data,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("signal marshal")
		return
	}

	var res core.PublishResult
	if len(p.To) > 0 {
		res = room.SendTo(p.To, out)
	} else {
		res = room.Broadcast(id, out)
	}
	ctl.applyBackpressure(room, res)
	log.Debug().
		Str("module", "signal").
		Str("signal_type", p.SignalType).
		Str("from", string(id)).
		Int("sent_to", res.SentTo).
		Int("dropped", len(res.Dropped)).
		Msg("signal routed")
	ctl.sendAck(st.ws, p.Ref)
}
