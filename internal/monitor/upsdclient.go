package monitor

import (
	"context"

	"github.com/upswake/upswake/internal/store"
	"github.com/upswake/upswake/internal/upsd"
)

// upsdProtocol adapts the concrete upsd client to the ProtocolClient
// interface the service is built against.
type upsdProtocol struct {
	client *upsd.Client
}

// NewUpsdProtocol wraps a upsd client for use by the monitoring service.
func NewUpsdProtocol(client *upsd.Client) ProtocolClient {
	return &upsdProtocol{client: client}
}

func (p *upsdProtocol) Connect(ctx context.Context, agent store.Agent) (ProtocolSession, error) {
	sess, err := p.client.Connect(ctx, agent)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (p *upsdProtocol) FetchAll(ctx context.Context, agent store.Agent) (map[string]map[string]string, error) {
	return p.client.FetchAll(ctx, agent)
}
