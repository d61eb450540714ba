package core

import (
	"sync"

	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure to the controller.
type PublishResult struct {
	SentTo  int
	Dropped []MemberSession
}

type RoomInfo struct {
	ID          domain.SessionID `json:"id"`
	MemberCount int              `json:"member_count"`
}

// RoomService is the core-facing API of a session room. It owns the
// membership set but never touches transport resources. Capacity is fixed
// at creation; AddMember refuses members beyond it.
type RoomService interface {
	ID() domain.SessionID
	Capacity() int
	MemberCount() int
	Members() []MemberSession
	Member(id domain.ConnectionID) (MemberSession, bool)

	AddMember(ms MemberSession) error
	RemoveMember(id domain.ConnectionID)
	// Broadcast fans a frame out to every member but the sender.
	Broadcast(from domain.ConnectionID, data Frame) PublishResult
	// SendTo delivers a frame to the named members only.
	SendTo(ids []domain.ConnectionID, data Frame) PublishResult
}

type RoomFactory interface {
	GetOrCreate(id domain.SessionID, capacity int) RoomService
	Get(id domain.SessionID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.SessionID)
}

// roomImpl is a threadsafe in-memory session room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id       domain.SessionID
	capacity int

	mu    sync.RWMutex
	byID  map[domain.ConnectionID]MemberSession
	order []domain.ConnectionID
}

// NewRoomService creates a room for one media or signaling session.
// capacity <= 0 means unbounded (signaling rooms).
func NewRoomService(id domain.SessionID, capacity int) RoomService {
	return &roomImpl{
		id:       id,
		capacity: capacity,
		byID:     make(map[domain.ConnectionID]MemberSession),
	}
}

func (r *roomImpl) ID() domain.SessionID { return r.id }
func (r *roomImpl) Capacity() int        { return r.capacity }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *roomImpl) AddMember(ms MemberSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity > 0 && len(r.byID) >= r.capacity {
		return ErrSessionFull
	}
	if _, ok := r.byID[ms.ID()]; !ok {
		r.order = append(r.order, ms.ID())
	}
	r.byID[ms.ID()] = ms
	log.Info().Str("module", "core.room").Str("session", string(r.id)).Str("conn", string(ms.ID())).Msg("member added")
	return nil
}

func (r *roomImpl) RemoveMember(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, cid := range r.order {
		if cid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.room").Str("session", string(r.id)).Str("conn", string(id)).Msg("member removed")
}

func (r *roomImpl) Member(id domain.ConnectionID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.byID[id]
	return ms, ok
}

func (r *roomImpl) Members() []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *roomImpl) Broadcast(from domain.ConnectionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for id, m := range r.byID {
		if id == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(ids []domain.ConnectionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, id := range ids {
		m, ok := r.byID[id]
		if !ok {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	return res
}
