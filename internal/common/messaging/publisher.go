package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/common/metrics"
)

// Publisher publishes JSON events to the topic exchange.
type Publisher struct {
	client *Client
	log    logger.Logger
}

func NewPublisher(client *Client, log logger.Logger) *Publisher {
	return &Publisher{
		client: client,
		log:    log.WithFields(map[string]interface{}{"component": "publisher"}),
	}
}

// Publish serializes payload and publishes it under the routing key with
// persistent delivery and correlation headers.
func (p *Publisher) Publish(routingKey string, payload interface{}, headers map[string]interface{}) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("no connection to broker")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	err = p.client.Channel().Publish(
		p.client.Exchange(),
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now().UTC(),
			Headers:      table,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	metrics.EventsPublished.WithLabelValues(routingKey).Inc()
	p.log.Debug("event published", map[string]interface{}{"routingKey": routingKey})
	return nil
}

// PublishWithRetry retries transient publish failures with a linear backoff.
func (p *Publisher) PublishWithRetry(routingKey string, payload interface{}, headers map[string]interface{}, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := p.Publish(routingKey, payload, headers); err != nil {
			lastErr = err
			p.log.Warn("publish retry", map[string]interface{}{
				"routingKey": routingKey,
				"attempt":    i + 1,
				"error":      err.Error(),
			})
			if i < maxRetries-1 {
				time.Sleep(time.Second * time.Duration(i+1))
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("publish %s failed after %d attempts: %w", routingKey, maxRetries, lastErr)
}
