package signal

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/wire"
)

func connInfo(m core.MemberSession) wire.ConnInfo {
	flags, published := m.Stream()
	return wire.ConnInfo{
		ID:        m.ID(),
		Metadata:  json.RawMessage(m.Metadata()),
		Stream:    flags,
		Published: published,
	}
}

func (ctl *SignalWSController) handleJoin(st *connState, data []byte) {
	var p wire.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(st.ws, "", wire.CodeBadPayload, "bad join payload")
		return
	}

	if _, _, _, ok := st.joined(); ok {
		ctl.sendError(st.ws, p.Ref, wire.CodeBadPayload, "already joined")
		return
	}

	sessionID := p.Session
	if sessionID == "" {
		sessionID = domain.SessionID(uuid.NewString())
	}
	capacity := st.account.Profile.Settings.Init.MaxParticipants
	room := ctl.Rooms.GetOrCreate(sessionID, capacity)

	id := domain.ConnectionID(uuid.NewString())
	member := core.NewMemberSession(id, p.Role, []byte(p.Metadata), st.ws)
	if err := room.AddMember(member); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("session", string(sessionID)).Msg("join refused")
		ctl.sendError(st.ws, p.Ref, wire.CodeMaxParticipants, "session is full")
		return
	}

	st.mu.Lock()
	st.id = id
	st.room = room
	st.member = member
	st.mu.Unlock()
	ctl.Registry.Bind(id, sessionID, member, st.account, st.ws.Close)

	members := make([]wire.ConnInfo, 0, room.MemberCount())
	for _, m := range room.Members() {
		if m.ID() == id {
			continue
		}
		members = append(members, connInfo(m))
	}
	ctl.sendJSON(st.ws, wire.Joined{
		Type:       wire.TypeJoined,
		Ref:        p.Ref,
		Session:    sessionID,
		Connection: connInfo(member),
		Members:    members,
	})
	ctl.broadcastMemberEvent(room, id, wire.TypeMemberJoined, member)
	log.Info().Str("module", "signal").Str("session", string(sessionID)).Str("conn", string(id)).Str("role", p.Role).Msg("join")
}

func (ctl *SignalWSController) handlePublish(st *connState, data []byte) {
	var p wire.Publish
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad publish payload")
		ctl.sendError(st.ws, "", wire.CodeBadPayload, "bad publish payload")
		return
	}
	id, room, member, ok := st.joined()
	if !ok {
		ctl.sendError(st.ws, p.Ref, wire.CodeNotJoined, "join first")
		return
	}
	member.SetStream(p.Stream, true)
	ctl.sendAck(st.ws, p.Ref)
	ctl.broadcastMemberEvent(room, id, wire.TypeStreamCreated, member)
	log.Info().Str("module", "signal").Str("conn", string(id)).Bool("audio", p.Stream.HasAudio).Bool("video", p.Stream.HasVideo).Msg("publish")
}

func (ctl *SignalWSController) handleUnpublish(st *connState, ref string) {
	id, room, member, ok := st.joined()
	if !ok {
		ctl.sendError(st.ws, ref, wire.CodeNotJoined, "join first")
		return
	}
	member.SetStream(domain.StreamFlags{}, false)
	ctl.sendAck(st.ws, ref)
	ctl.broadcastMemberEvent(room, id, wire.TypeStreamDestroyed, member)
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("unpublish")
}

// handleLeave detaches the member from its session but keeps the socket
// open for a later join.
func (ctl *SignalWSController) handleLeave(st *connState, ref string) {
	_, _, _, ok := st.joined()
	if !ok {
		ctl.sendAck(st.ws, ref)
		return
	}
	ctl.detach(st)
	ctl.sendAck(st.ws, ref)
}

func (ctl *SignalWSController) cleanup(st *connState) {
	ctl.detach(st)
}

func (ctl *SignalWSController) detach(st *connState) {
	st.mu.Lock()
	id, room, member := st.id, st.room, st.member
	st.id, st.room, st.member = "", nil, nil
	st.mu.Unlock()
	if member == nil {
		return
	}

	room.RemoveMember(id)
	ctl.Registry.Unbind(id)
	ctl.Limiter.Forget(id)
	ctl.broadcastMemberEvent(room, id, wire.TypeMemberLeft, member)
	if room.MemberCount() == 0 {
		ctl.Rooms.StopRoom(room.ID())
		log.Info().Str("module", "signal").Str("session", string(room.ID())).Msg("stopped empty session")
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("leave")
}

func (ctl *SignalWSController) broadcastMemberEvent(
	room core.RoomService,
	from domain.ConnectionID,
	eventType string,
	member core.MemberSession,
) {
	b, err := json.Marshal(wire.MemberEvent{Type: eventType, Connection: connInfo(member)})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("member event marshal")
		return
	}
	res := room.Broadcast(from, b)
	ctl.applyBackpressure(room, res)
}

// applyBackpressure runs the slow-member policy over a delivery result.
func (ctl *SignalWSController) applyBackpressure(room core.RoomService, res core.PublishResult) {
	for _, dropped := range res.Dropped {
		switch ctl.Policy.OnBackPressure(room, dropped) {
		case app.KickMember:
			log.Warn().Str("module", "signal").Str("conn", string(dropped.ID())).Msg("kicking slow member")
			ctl.Registry.Cancel(dropped.ID())
		default:
			log.Warn().Str("module", "signal").Str("conn", string(dropped.ID())).Msg("frame dropped")
		}
	}
}
