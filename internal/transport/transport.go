// Package transport delivers rendered notifications over channel-specific
// providers.
package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/getailigned/notification-service/internal/notification"
)

// Transport delivers one rendered payload over a channel. Implementations
// never return an error: every failure is captured as a failed Response so
// the dispatch engine can treat the outcome uniformly.
type Transport interface {
	Send(ctx context.Context, req *notification.Request, rendered *notification.RenderedTemplate) *notification.Response
}

// Registry routes a request's channel to its transport.
type Registry struct {
	transports map[notification.Channel]Transport
}

func NewRegistry() *Registry {
	return &Registry{transports: make(map[notification.Channel]Transport)}
}

// Register binds a transport to a channel.
func (r *Registry) Register(channel notification.Channel, t Transport) {
	r.transports[channel] = t
}

// For returns the transport bound to the channel, if any.
func (r *Registry) For(channel notification.Channel) (Transport, bool) {
	t, ok := r.transports[channel]
	return t, ok
}

// StubTransport is the deterministic pass-through used for channels without
// a real provider integration (in_app, sms, push, slack, teams, webhook).
type StubTransport struct {
	Channel notification.Channel
}

func NewStubTransport(channel notification.Channel) *StubTransport {
	return &StubTransport{Channel: channel}
}

// Send resolves immediately to sent with a generated message id.
func (t *StubTransport) Send(_ context.Context, req *notification.Request, _ *notification.RenderedTemplate) *notification.Response {
	now := time.Now().UTC()
	return &notification.Response{
		ID:        req.ID,
		Status:    notification.StatusSent,
		SentAt:    &now,
		MessageID: uuid.New().String(),
	}
}
