// Package messaging wraps the RabbitMQ topic exchange used for workflow and
// notification events.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/getailigned/notification-service/internal/common/config"
	"github.com/getailigned/notification-service/internal/common/logger"
)

// Client owns one AMQP connection and channel, reconnecting with a bounded
// backoff loop when the broker drops the connection.
type Client struct {
	cfg    config.RabbitMQConfig
	log    logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	connection *amqp.Connection
	channel    *amqp.Channel
	closing    bool
}

func NewClient(cfg config.RabbitMQConfig, log logger.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		log:    log.WithFields(map[string]interface{}{"component": "rabbitmq"}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect dials the broker, declares the topic exchange and starts the
// reconnect watcher. Dial attempts are retried RetryCount times before
// giving up.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	var lastErr error
	retryDelay := time.Duration(c.cfg.RetryDelay) * time.Second

	for attempt := 1; attempt <= c.cfg.RetryCount; attempt++ {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			lastErr = err
			c.log.Warn("broker dial failed", map[string]interface{}{
				"attempt": attempt,
				"of":      c.cfg.RetryCount,
				"error":   err.Error(),
			})
			if attempt < c.cfg.RetryCount {
				time.Sleep(retryDelay)
			}
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return fmt.Errorf("open channel: %w", err)
		}

		if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("set qos: %w", err)
		}

		err = ch.ExchangeDeclare(
			c.cfg.Exchange,
			"topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare exchange: %w", err)
		}

		c.connection = conn
		c.channel = ch
		c.log.Info("connected to broker", map[string]interface{}{"exchange": c.cfg.Exchange})

		go c.watchConnection(conn)
		return nil
	}

	return fmt.Errorf("connect to broker after %d attempts: %w", c.cfg.RetryCount, lastErr)
}

// watchConnection blocks on the close notification for one connection and
// drives a timer-based reconnect loop. Each reconnect uses a fresh watcher,
// so the loop never recurses.
func (c *Client) watchConnection(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-c.ctx.Done():
		return
	case amqpErr := <-notifyClose:
		if amqpErr == nil {
			return // clean shutdown
		}
		c.log.Warn("broker connection lost", map[string]interface{}{"error": amqpErr.Error()})
	}

	backoff := time.Duration(c.cfg.RetryDelay) * time.Second
	const maxBackoff = 2 * time.Minute

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}

		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			return
		}
		err := c.connectLocked()
		c.mu.Unlock()

		if err == nil {
			return
		}
		c.log.Warn("reconnect failed", map[string]interface{}{
			"error":        err.Error(),
			"next_attempt": backoff.String(),
		})
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// Channel returns the current AMQP channel.
func (c *Client) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Exchange returns the configured exchange name.
func (c *Client) Exchange() string {
	return c.cfg.Exchange
}

// IsConnected reports whether the client holds a live connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connection != nil && !c.connection.IsClosed()
}

// Done exposes the client's lifetime context for consumer loops.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close shuts down the channel and connection and stops reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return nil
	}
	c.closing = true
	c.cancel()

	var closeErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			closeErr = fmt.Errorf("close channel: %w", err)
		}
	}
	if c.connection != nil {
		if err := c.connection.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("close connection: %w", err)
		}
	}
	return closeErr
}
