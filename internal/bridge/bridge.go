package bridge

import (
	"context"

	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/common/messaging"
	"github.com/getailigned/notification-service/internal/notification"
)

const (
	eventsQueue     = "notifications.events"
	digestQueue     = "notifications.digest"
	escalationQueue = "notifications.escalation"
)

// Dispatcher is the slice of the dispatch engine the bridge needs.
type Dispatcher interface {
	Send(ctx context.Context, req *notification.Request) *notification.Response
}

// OutcomePublisher publishes workflow follow-up events. Follow-ups ride a
// bounded retry since the workflow engine waits on them.
type OutcomePublisher interface {
	PublishWithRetry(routingKey string, payload interface{}, headers map[string]interface{}, maxRetries int) error
}

// followUpRetries bounds publish attempts for workflow follow-up events.
const followUpRetries = 3

// Bridge consumes bus events, maps them to notification requests and hands
// them to the dispatch engine.
type Bridge struct {
	client    *messaging.Client
	publisher OutcomePublisher
	engine    Dispatcher
	log       logger.Logger
}

func New(client *messaging.Client, publisher OutcomePublisher, engine Dispatcher, log logger.Logger) *Bridge {
	return &Bridge{
		client:    client,
		publisher: publisher,
		engine:    engine,
		log:       log.WithFields(map[string]interface{}{"component": "bridge"}),
	}
}

// Start binds the three consumption queues. The main events queue does not
// requeue failed deliveries; the digest and escalation queues do, since
// their handlers are safe to retry.
func (b *Bridge) Start(ctx context.Context) error {
	events := messaging.NewConsumer(b.client, b.log, eventsQueue, false)
	if err := events.Consume(
		[]string{"work-item.*", "workflow.approval-requested", "workflow.sla-breach"},
		b.handler(ctx, nil),
	); err != nil {
		return err
	}

	digests := messaging.NewConsumer(b.client, b.log, digestQueue, true)
	if err := digests.Consume(
		[]string{"workflow.digest-due"},
		b.handler(ctx, b.digestFollowUp),
	); err != nil {
		return err
	}

	escalations := messaging.NewConsumer(b.client, b.log, escalationQueue, true)
	return escalations.Consume(
		[]string{"workflow.escalation-triggered"},
		b.handler(ctx, b.escalationFollowUp),
	)
}

type followUp func(event *InboundEvent, resp *notification.Response)

// handler adapts an optional follow-up into a delivery handler. Unrecognized
// event types are logged and acknowledged so they never poison the queue.
func (b *Bridge) handler(ctx context.Context, after followUp) messaging.DeliveryHandler {
	return func(routingKey string, body []byte) error {
		event, err := Parse(routingKey, body)
		if err != nil {
			return err
		}

		if event.Kind == KindUnrecognized {
			b.log.Warn("ignoring unrecognized event", map[string]interface{}{
				"routingKey": routingKey,
				"eventType":  event.EventType,
			})
			return nil
		}

		req := event.ToRequest()
		resp := b.engine.Send(ctx, req)
		b.log.Info("event dispatched", map[string]interface{}{
			"eventType":      event.EventType,
			"notificationId": resp.ID,
			"status":         string(resp.Status),
		})

		if after != nil {
			after(event, resp)
		}
		return nil
	}
}

func (b *Bridge) digestFollowUp(event *InboundEvent, resp *notification.Response) {
	b.publishFollowUp("workflow.digest-dispatched", event, resp)
}

func (b *Bridge) escalationFollowUp(event *InboundEvent, resp *notification.Response) {
	b.publishFollowUp("workflow.escalation-notified", event, resp)
}

// publishFollowUp reports back to the workflow engine. Exhausted retries
// are logged but do not fail the delivery: the notification itself already
// went out.
func (b *Bridge) publishFollowUp(routingKey string, event *InboundEvent, resp *notification.Response) {
	payload := map[string]interface{}{
		"eventType":      routingKey,
		"tenantId":       event.TenantID,
		"sourceEvent":    event.EventType,
		"notificationId": resp.ID,
		"status":         string(resp.Status),
	}
	if err := b.publisher.PublishWithRetry(routingKey, payload, nil, followUpRetries); err != nil {
		b.log.WithError(err).Error("follow-up publish failed", map[string]interface{}{
			"routingKey": routingKey,
		})
	}
}
