package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"sync"
	"time"

	"github.com/getailigned/notification-service/internal/common/config"
	"github.com/getailigned/notification-service/internal/common/logger"
)

// xoauth2Auth implements the SASL XOAUTH2 mechanism used by OAuth-backed
// SMTP providers.
type xoauth2Auth struct {
	user  string
	token string
}

func (a *xoauth2Auth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	payload := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.user, a.token)
	return "XOAUTH2", []byte(payload), nil
}

func (a *xoauth2Auth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		// Server sent an error challenge; an empty response makes it
		// terminate the exchange with the real SMTP error.
		return []byte(""), nil
	}
	return nil, nil
}

// smtpPool keeps a bounded set of authenticated SMTP connections. Every
// sender in the process shares one pool. Connections past maxConnAge are
// discarded instead of reused.
type smtpPool struct {
	cfg config.EmailConfig
	log logger.Logger

	mu    sync.Mutex
	conns chan *pooledConn
	token string // current XOAUTH2 access token
}

type pooledConn struct {
	client    *smtp.Client
	createdAt time.Time
}

const maxConnAge = 5 * time.Minute

func newSMTPPool(cfg config.EmailConfig, log logger.Logger) *smtpPool {
	return &smtpPool{
		cfg:   cfg,
		log:   log,
		conns: make(chan *pooledConn, cfg.PoolSize),
	}
}

// setToken installs a fresh access token and retires every pooled
// connection, since their authenticated sessions carry the old credential.
// The retired channel is drained, never closed: puts happen under the
// mutex against the current channel, so no send can hit a retired pool.
func (p *smtpPool) setToken(token string) {
	p.mu.Lock()
	old := p.conns
	p.token = token
	p.conns = make(chan *pooledConn, p.cfg.PoolSize)
	p.mu.Unlock()

	drainPool(old)
}

func drainPool(conns chan *pooledConn) {
	for {
		select {
		case conn := <-conns:
			_ = conn.client.Quit()
		default:
			return
		}
	}
}

func (p *smtpPool) currentToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *smtpPool) pool() chan *pooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns
}

func (p *smtpPool) dial(ctx context.Context) (*smtp.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.SMTPHost, p.cfg.SMTPPort)
	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := client.StartTLS(&tls.Config{ServerName: p.cfg.SMTPHost}); err != nil {
		client.Close()
		return nil, fmt.Errorf("starttls: %w", err)
	}

	auth := &xoauth2Auth{user: p.cfg.From, token: p.currentToken()}
	if err := client.Auth(auth); err != nil {
		client.Close()
		return nil, fmt.Errorf("xoauth2 auth: %w", err)
	}
	return client, nil
}

// get returns a live connection, preferring the pool and dialing fresh when
// the pool is empty, rotated away by a token refresh, or holding only stale
// connections.
func (p *smtpPool) get(ctx context.Context) (*smtp.Client, error) {
	for {
		var conn *pooledConn
		select {
		case conn = <-p.pool():
		default:
			return p.dial(ctx)
		}
		if time.Since(conn.createdAt) > maxConnAge {
			_ = conn.client.Quit()
			continue
		}
		if err := conn.client.Noop(); err != nil {
			conn.client.Close()
			continue
		}
		return conn.client, nil
	}
}

// put returns a healthy connection to the pool, discarding on overflow.
// The send happens under the mutex so a concurrent token rotation can
// neither strand the connection in a retired channel nor panic the send.
func (p *smtpPool) put(client *smtp.Client, healthy bool) {
	if client == nil {
		return
	}
	if !healthy {
		client.Close()
		return
	}

	p.mu.Lock()
	select {
	case p.conns <- &pooledConn{client: client, createdAt: time.Now()}:
		p.mu.Unlock()
		return
	default:
	}
	p.mu.Unlock()
	_ = client.Quit()
}

// close drains and quits every pooled connection.
func (p *smtpPool) close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(chan *pooledConn, p.cfg.PoolSize)
	p.mu.Unlock()

	drainPool(conns)
}

// send pushes one message through a pooled connection.
func (p *smtpPool) send(ctx context.Context, from, to string, msg []byte) error {
	client, err := p.get(ctx)
	if err != nil {
		return err
	}

	if err := p.transmit(client, from, to, msg); err != nil {
		p.put(client, false)
		return err
	}
	p.put(client, true)
	return nil
}

func (p *smtpPool) transmit(client *smtp.Client, from, to string, msg []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		_ = client.Reset()
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return nil
}
