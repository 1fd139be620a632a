package messaging

import (
	"fmt"

	"github.com/streadway/amqp"

	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/common/metrics"
)

// DeliveryHandler processes one raw delivery. The returned error decides the
// acknowledgement: nil acks, non-nil nacks with the queue's requeue policy.
type DeliveryHandler func(routingKey string, body []byte) error

// Consumer binds a durable queue to routing keys and dispatches deliveries
// to a handler.
type Consumer struct {
	client    *Client
	log       logger.Logger
	queueName string
	// RequeueOnFailure controls the nack policy: poison-message avoidance
	// for most queues, requeue for digest/escalation queues where retry is
	// safe.
	requeueOnFailure bool
}

func NewConsumer(client *Client, log logger.Logger, queueName string, requeueOnFailure bool) *Consumer {
	return &Consumer{
		client:           client,
		log:              log.WithFields(map[string]interface{}{"component": "consumer", "queue": queueName}),
		queueName:        queueName,
		requeueOnFailure: requeueOnFailure,
	}
}

// Consume declares the durable queue, binds it to the routing keys and
// starts the delivery loop in a goroutine.
func (c *Consumer) Consume(routingKeys []string, handler DeliveryHandler) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("no connection to broker")
	}

	channel := c.client.Channel()

	queue, err := channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queueName, err)
	}

	for _, routingKey := range routingKeys {
		if err := channel.QueueBind(queue.Name, routingKey, c.client.Exchange(), false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", queue.Name, routingKey, err)
		}
		c.log.Info("queue bound", map[string]interface{}{"routingKey": routingKey})
	}

	deliveries, err := channel.Consume(
		queue.Name,
		c.queueName, // consumer tag
		false,       // manual ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consume on %s: %w", queue.Name, err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-deliveries:
				if !ok {
					c.log.Warn("delivery channel closed", nil)
					return
				}
				c.handleDelivery(msg, handler)
			case <-c.client.Done():
				c.log.Info("consumer stopped", nil)
				return
			}
		}
	}()

	return nil
}

func (c *Consumer) handleDelivery(msg amqp.Delivery, handler DeliveryHandler) {
	if err := handler(msg.RoutingKey, msg.Body); err != nil {
		c.log.Error("delivery handling failed", map[string]interface{}{
			"routingKey": msg.RoutingKey,
			"requeue":    c.requeueOnFailure,
			"error":      err.Error(),
		})
		metrics.EventsConsumed.WithLabelValues(c.queueName, "failed").Inc()
		_ = msg.Nack(false, c.requeueOnFailure)
		return
	}

	metrics.EventsConsumed.WithLabelValues(c.queueName, "ok").Inc()
	_ = msg.Ack(false)
}
