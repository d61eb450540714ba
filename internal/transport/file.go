package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// dcEnvelope frames a file message on the data channel wire with its
// sender's connection id.
type dcEnvelope struct {
	From   domain.ConnectionID `json:"from"`
	Custom domain.FileMessage  `json:"custom"`
}

// DataChannelTransport moves file messages over peer data channels, one
// per remote participant. Peers are added as their connections come up
// and removed on teardown; Send fans out to every live peer.
type DataChannelTransport struct {
	localID domain.ConnectionID
	logger  messageLogger

	mu       sync.RWMutex
	peers    map[domain.ConnectionID]core.DataConnection
	handlers []core.HandleRecvMessage[domain.FileMessage]
}

func NewDataChannelTransport(localID domain.ConnectionID, logger messageLogger) *DataChannelTransport {
	return &DataChannelTransport{
		localID: localID,
		logger:  logger,
		peers:   make(map[domain.ConnectionID]core.DataConnection),
	}
}

// AddPeer wires a negotiated peer connection into the transport.
func (t *DataChannelTransport) AddPeer(id domain.ConnectionID, conn core.DataConnection) {
	conn.OnMessage(t.receive)
	t.mu.Lock()
	t.peers[id] = conn
	t.mu.Unlock()
	log.Info().Str("module", "transport").Str("peer", string(id)).Msg("file peer added")
}

func (t *DataChannelTransport) RemovePeer(id domain.ConnectionID) {
	t.mu.Lock()
	delete(t.peers, id)
	t.mu.Unlock()
}

func (t *DataChannelTransport) Send(ctx context.Context, message domain.FileMessage) error {
	data, err := json.Marshal(dcEnvelope{From: t.localID, Custom: message})
	if err != nil {
		return err
	}

	t.mu.RLock()
	peers := make(map[domain.ConnectionID]core.DataConnection, len(t.peers))
	for id, conn := range t.peers {
		peers[id] = conn
	}
	t.mu.RUnlock()

	var firstErr error
	for id, conn := range peers {
		if err := conn.SendMessage(data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send file to %s: %w", id, err)
		}
	}
	if firstErr != nil {
		return firstErr
	}

	if t.logger != nil {
		rec := domain.MessageRecord{
			Type:       domain.MessageFile,
			FileName:   message.Name,
			FileMime:   message.Mime,
			FileSize:   message.Size,
			Time:       message.Time,
			Connection: t.localID,
		}
		if err := t.logger.LogMessage(ctx, rec); err != nil {
			log.Warn().Err(err).Str("module", "transport").Msg("file message not recorded on backend")
		}
	}
	return nil
}

func (t *DataChannelTransport) OnReceived(h core.HandleRecvMessage[domain.FileMessage]) {
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
}

func (t *DataChannelTransport) receive(data []byte) {
	var env dcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "transport").Msg("malformed file payload dropped")
		return
	}
	msg := core.RecvMessage[domain.FileMessage]{
		Custom: env.Custom,
		System: core.RecvSystem{From: env.From, Stream: domain.StreamSubscriber},
	}
	t.mu.RLock()
	handlers := make([]core.HandleRecvMessage[domain.FileMessage], len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
}

var _ core.Transport[domain.FileMessage] = (*DataChannelTransport)(nil)
