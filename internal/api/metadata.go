package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/backend"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

// clientIDKey persists the anonymous client id across runs.
const clientIDKey = "consult.userid"

// BuildMetadata assembles the metadata every session join publishes:
// participant kind, profile, avatar and, for clients, a stable anonymous
// id loaded from storage or minted on first use.
func BuildMetadata(
	ctx context.Context,
	ptype domain.ParticipantType,
	be *backend.Client,
	store core.Storage,
) (domain.ParticipantMetadata, domain.Profile, error) {
	profile, err := be.FetchProfile(ctx)
	if err != nil {
		return domain.ParticipantMetadata{}, domain.Profile{}, err
	}

	var avatar string
	if info, err := be.FetchUserInfo(ctx, profile.Email); err == nil {
		avatar = info.Avatar
	} else if !backend.IsStatus(err, 404) {
		log.Warn().Err(err).Str("module", "api").Msg("user info lookup failed")
	}

	meta := domain.ParticipantMetadata{
		System: domain.SystemMetadata{
			Type: ptype,
			Profile: domain.ParticipantInfo{
				Profile: profile,
				Avatar:  avatar,
			},
		},
	}
	if ptype == domain.ParticipantClient {
		meta.System.ClientID = clientID(store)
	}
	return meta, profile, nil
}

// clientID returns the persisted anonymous id, creating it when absent.
// Storage failures fall back to an unpersisted id rather than failing
// the call.
func clientID(store core.Storage) string {
	if store != nil {
		if v, ok := store.Get(clientIDKey); ok && v != "" {
			return v
		}
	}
	id := uuid.NewString()
	if store != nil {
		if err := store.Set(clientIDKey, id); err != nil {
			log.Warn().Err(err).Str("module", "api").Msg("client id not persisted")
		}
	}
	return id
}
