package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/wire"
)

// handleRTC relays offer/answer/candidate frames between two members
// negotiating a peer data channel. The relay never inspects the SDP.
func (ctl *SignalWSController) handleRTC(st *connState, data []byte) {
	var p wire.RTC
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rtc payload")
		return
	}
	id, room, _, ok := st.joined()
	if !ok {
		ctl.sendError(st.ws, "", wire.CodeNotJoined, "join first")
		return
	}
	if p.To == "" {
		log.Warn().Str("module", "signal").Str("type", p.Type).Msg("rtc frame without recipient")
		return
	}

	p.From = id
	out, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("rtc marshal")
		return
	}
	res := room.SendTo([]domain.ConnectionID{p.To}, out)
	if res.SentTo == 0 {
		log.Warn().Str("module", "signal").Str("type", p.Type).Str("to", string(p.To)).Msg("rtc recipient unavailable")
	}
}
