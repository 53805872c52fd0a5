package health

import (
	"context"

	"github.com/0xmhha/mempoolwatch/client"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Prober performs one liveness probe against an endpoint and returns
// its latest block number.
type Prober interface {
	Probe(ctx context.Context, endpoint types.Endpoint) (uint64, error)
}

// TransportProber probes by dialing a point-query transport and asking
// for the latest block number.
type TransportProber struct {
	factory client.Factory
}

// NewTransportProber creates a prober on top of a transport factory.
func NewTransportProber(factory client.Factory) *TransportProber {
	return &TransportProber{factory: factory}
}

// Probe implements Prober.
func (p *TransportProber) Probe(ctx context.Context, endpoint types.Endpoint) (uint64, error) {
	transport, err := p.factory.Transport(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	defer transport.Close()

	return transport.LatestBlockNumber(ctx)
}
