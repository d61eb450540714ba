package api

import (
	"context"

	"github.com/dkeye/consult/internal/domain"
)

// DeviceProber reports which capture devices are actually available, so
// publish flags never promise a stream the participant cannot produce.
type DeviceProber interface {
	Probe(ctx context.Context) (domain.StreamFlags, error)
}

// StaticProber answers with fixed flags. The default prober trusts the
// account's configured publisher settings.
type StaticProber struct {
	Flags domain.StreamFlags
}

func (p StaticProber) Probe(context.Context) (domain.StreamFlags, error) {
	return p.Flags, nil
}
