package session

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/wire"
)

// negotiatePeers opens a data channel toward every member already in the
// session. The newcomer always initiates, so two members never offer to
// each other at once.
func (s *wsSession) negotiatePeers(ctx context.Context) {
	if s.rtc == nil {
		return
	}
	for _, remote := range s.RemoteConnections() {
		s.initiatePeer(ctx, remote.ID)
	}
}

func (s *wsSession) initiatePeer(ctx context.Context, id domain.ConnectionID) {
	conn, err := s.newPeer(ctx, id)
	if err != nil {
		return
	}
	offer, err := conn.CreateAndSetOffer()
	if err != nil {
		s.log.Error().Err(err).Str("peer", string(id)).Msg("create offer")
		s.dropPeer(id)
		return
	}
	s.sendRTC(wire.RTC{Type: wire.TypeOffer, To: id, SDP: offer.SDP})
}

func (s *wsSession) newPeer(ctx context.Context, id domain.ConnectionID) (core.DataConnection, error) {
	conn, err := s.rtc()
	if err != nil {
		s.log.Error().Err(err).Str("peer", string(id)).Msg("new peer connection")
		return nil, err
	}

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		frame := wire.RTC{Type: wire.TypeCandidate, To: id, Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			frame.SDPMid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			frame.SDPMLineIndex = *ci.SDPMLineIndex
		}
		s.sendRTC(frame)
	})
	conn.OnOpen(func() {
		s.log.Debug().Str("peer", string(id)).Msg("data channel open")
		for _, h := range s.dataConnHandlers() {
			h(id, conn)
		}
	})
	conn.OnClosed(func() {
		s.dropPeer(id)
	})

	if err := conn.Start(ctx); err != nil {
		s.log.Error().Err(err).Str("peer", string(id)).Msg("start peer connection")
		conn.Close()
		return nil, err
	}

	s.peersMu.Lock()
	s.peers[id] = conn
	s.peersMu.Unlock()
	return conn, nil
}

func (s *wsSession) handleRTC(ctx context.Context, data []byte) {
	if s.rtc == nil {
		return
	}
	var p wire.RTC
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error().Err(err).Msg("bad rtc frame")
		return
	}

	switch p.Type {
	case wire.TypeOffer:
		s.handleOffer(ctx, p)
	case wire.TypeAnswer:
		s.handleAnswer(p)
	case wire.TypeCandidate:
		s.handleCandidate(p)
	}
}

func (s *wsSession) handleOffer(ctx context.Context, p wire.RTC) {
	conn, err := s.newPeer(ctx, p.From)
	if err != nil {
		return
	}
	answer, err := conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	})
	if err != nil {
		s.log.Error().Err(err).Str("peer", string(p.From)).Msg("apply offer")
		s.dropPeer(p.From)
		return
	}
	s.flushCandidates(p.From, conn)
	s.sendRTC(wire.RTC{Type: wire.TypeAnswer, To: p.From, SDP: answer.SDP})
}

func (s *wsSession) handleAnswer(p wire.RTC) {
	s.peersMu.Lock()
	conn, ok := s.peers[p.From]
	s.peersMu.Unlock()
	if !ok {
		s.log.Warn().Str("peer", string(p.From)).Msg("answer for unknown peer")
		return
	}
	if err := conn.ApplyAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  p.SDP,
	}); err != nil {
		s.log.Error().Err(err).Str("peer", string(p.From)).Msg("apply answer")
		s.dropPeer(p.From)
		return
	}
	s.flushCandidates(p.From, conn)
}

// handleCandidate applies a remote candidate, buffering it while the
// peer's remote description is not set yet.
func (s *wsSession) handleCandidate(p wire.RTC) {
	s.peersMu.Lock()
	conn, ok := s.peers[p.From]
	if !ok {
		s.candBuf[p.From] = append(s.candBuf[p.From], p)
		s.peersMu.Unlock()
		return
	}
	s.peersMu.Unlock()

	if err := conn.AddICECandidate(candidateInit(p)); err != nil {
		s.peersMu.Lock()
		s.candBuf[p.From] = append(s.candBuf[p.From], p)
		s.peersMu.Unlock()
	}
}

func (s *wsSession) flushCandidates(id domain.ConnectionID, conn core.DataConnection) {
	s.peersMu.Lock()
	buf := s.candBuf[id]
	delete(s.candBuf, id)
	s.peersMu.Unlock()
	for _, p := range buf {
		if err := conn.AddICECandidate(candidateInit(p)); err != nil {
			s.log.Warn().Err(err).Str("peer", string(id)).Msg("flush candidate")
		}
	}
}

func candidateInit(p wire.RTC) webrtc.ICECandidateInit {
	ci := webrtc.ICECandidateInit{Candidate: p.Candidate}
	if p.SDPMid != "" {
		mid := p.SDPMid
		ci.SDPMid = &mid
	}
	idx := p.SDPMLineIndex
	ci.SDPMLineIndex = &idx
	return ci
}

func (s *wsSession) sendRTC(frame wire.RTC) {
	b, err := json.Marshal(frame)
	if err != nil {
		s.log.Error().Err(err).Msg("rtc marshal")
		return
	}
	select {
	case s.send <- b:
	default:
		s.log.Warn().Str("type", frame.Type).Msg("rtc frame dropped, send queue full")
	}
}

func (s *wsSession) dropPeer(id domain.ConnectionID) {
	s.peersMu.Lock()
	conn, ok := s.peers[id]
	delete(s.peers, id)
	delete(s.candBuf, id)
	s.peersMu.Unlock()
	if ok && !conn.IsClosed() {
		conn.Close()
	}
}

func (s *wsSession) closePeers() {
	s.peersMu.Lock()
	peers := s.peers
	s.peers = make(map[domain.ConnectionID]core.DataConnection)
	s.candBuf = make(map[domain.ConnectionID][]wire.RTC)
	s.peersMu.Unlock()
	for _, conn := range peers {
		if !conn.IsClosed() {
			conn.Close()
		}
	}
}
