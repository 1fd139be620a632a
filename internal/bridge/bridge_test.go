package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/notification"
)

type fakeEngine struct {
	requests []*notification.Request
}

func (f *fakeEngine) Send(_ context.Context, req *notification.Request) *notification.Response {
	f.requests = append(f.requests, req)
	now := time.Now().UTC()
	return &notification.Response{ID: "n-1", Status: notification.StatusSent, SentAt: &now}
}

type fakePublisher struct {
	keys     []string
	payloads []interface{}
	retries  []int
	err      error
}

func (f *fakePublisher) PublishWithRetry(routingKey string, payload interface{}, _ map[string]interface{}, maxRetries int) error {
	f.retries = append(f.retries, maxRetries)
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, routingKey)
	f.payloads = append(f.payloads, payload)
	return nil
}

func newTestBridge(t *testing.T) (*Bridge, *fakeEngine, *fakePublisher) {
	t.Helper()
	engine := &fakeEngine{}
	publisher := &fakePublisher{}
	return New(nil, publisher, engine, logger.NewTestLogger(t)), engine, publisher
}

func TestHandlerDispatchesRecognizedEvent(t *testing.T) {
	b, engine, _ := newTestBridge(t)
	handle := b.handler(context.Background(), nil)

	body := marshalEvent(t, "work-item.assigned", "tenant-1", WorkItemPayload{
		AssigneeID: "user-1", Priority: "high",
	})

	require.NoError(t, handle("work-item.assigned", body))
	require.Len(t, engine.requests, 1)
	assert.Equal(t, notification.TypeWorkItemAssigned, engine.requests[0].Type)
}

func TestHandlerAcksUnrecognizedEvent(t *testing.T) {
	b, engine, _ := newTestBridge(t)
	handle := b.handler(context.Background(), nil)

	body := marshalEvent(t, "workflow.cache-warmed", "tenant-1", map[string]string{})

	// nil means ack: unknown events must never poison the queue.
	require.NoError(t, handle("workflow.cache-warmed", body))
	assert.Empty(t, engine.requests)
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	b, engine, _ := newTestBridge(t)
	handle := b.handler(context.Background(), nil)

	assert.Error(t, handle("work-item.assigned", []byte("{broken")))
	assert.Empty(t, engine.requests)
}

func TestDigestFollowUpPublishes(t *testing.T) {
	b, engine, publisher := newTestBridge(t)
	handle := b.handler(context.Background(), b.digestFollowUp)

	body := marshalEvent(t, "workflow.digest-due", "tenant-1", DigestPayload{UserID: "user-1"})

	require.NoError(t, handle("workflow.digest-due", body))
	require.Len(t, engine.requests, 1)
	require.Equal(t, []string{"workflow.digest-dispatched"}, publisher.keys)
	assert.Equal(t, []int{followUpRetries}, publisher.retries)

	payload, ok := publisher.payloads[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "tenant-1", payload["tenantId"])
	assert.Equal(t, "n-1", payload["notificationId"])
}

func TestEscalationFollowUpPublishFailureStillAcks(t *testing.T) {
	b, engine, publisher := newTestBridge(t)
	publisher.err = errors.New("broker gone")
	handle := b.handler(context.Background(), b.escalationFollowUp)

	body := marshalEvent(t, "workflow.escalation-triggered", "tenant-1",
		EscalationPayload{EscalateToID: "manager-1"})

	// The notification went out; a follow-up publish failure must not nack.
	require.NoError(t, handle("workflow.escalation-triggered", body))
	require.Len(t, engine.requests, 1)
}
