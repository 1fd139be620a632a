package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/getailigned/notification-service/internal/common/config"
	apperrors "github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/common/metrics"
	"github.com/getailigned/notification-service/internal/directory"
	"github.com/getailigned/notification-service/internal/notification"
)

// tokenRefreshWindow triggers a proactive refresh before the cached access
// token actually expires.
const tokenRefreshWindow = 60 * time.Second

// mailer is the wire layer beneath the email transport.
type mailer interface {
	send(ctx context.Context, from, to string, msg []byte) error
}

// EmailTransport delivers notifications over an OAuth-authenticated SMTP
// provider. All senders in the process share its pooled connection and rate
// limiter. It never returns errors from Send: failures become failed
// responses.
type EmailTransport struct {
	cfg       config.EmailConfig
	log       logger.Logger
	directory directory.Directory
	signer    *UnsubscribeSigner
	baseURL   string
	limiter   *rate.Limiter
	pool      *smtpPool
	wire      mailer

	oauth oauth2.Config

	mu    sync.Mutex
	token *oauth2.Token
}

func NewEmailTransport(cfg config.EmailConfig, dir directory.Directory, signer *UnsubscribeSigner, baseURL string, log logger.Logger) *EmailTransport {
	pool := newSMTPPool(cfg, log)
	return &EmailTransport{
		cfg:       cfg,
		log:       log.WithFields(map[string]interface{}{"component": "email-transport"}),
		directory: dir,
		signer:    signer,
		baseURL:   strings.TrimRight(baseURL, "/"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		pool:      pool,
		wire:      pool,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
	}
}

// Close releases the pooled SMTP connections.
func (t *EmailTransport) Close() {
	t.pool.close()
}

// ensureCredential refreshes the cached access token when it is absent or
// within the refresh window of expiring, and rotates the SMTP pool so new
// sessions authenticate with the fresh token.
func (t *EmailTransport) ensureCredential(ctx context.Context) error {
	if !t.cfg.Configured() {
		return apperrors.NewChannelUnavailableError("email", "missing OAuth credentials")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != nil && t.token.Valid() && time.Until(t.token.Expiry) > tokenRefreshWindow {
		return nil
	}

	src := t.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: t.cfg.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return apperrors.NewTokenRefreshFailedError(err)
	}

	t.token = token
	t.pool.setToken(token.AccessToken)
	t.log.Info("access token refreshed", map[string]interface{}{
		"expires": token.Expiry.UTC().Format(time.RFC3339),
	})
	return nil
}

// Send delivers one rendered email as a batch of one: single, bulk and
// sweep-driven sends all go through the same batching path and share the
// pool and rate limiter.
func (t *EmailTransport) Send(ctx context.Context, req *notification.Request, rendered *notification.RenderedTemplate) *notification.Response {
	responses := t.SendBulk(ctx,
		[]*notification.Request{req},
		map[string]*notification.RenderedTemplate{req.TemplateID: rendered},
	)
	return responses[0]
}

// sendOne delivers one rendered email. Every failure path resolves to a
// failed response; the method never panics past its boundary and never
// errors.
func (t *EmailTransport) sendOne(ctx context.Context, req *notification.Request, rendered *notification.RenderedTemplate) *notification.Response {
	started := time.Now()

	if err := t.ensureCredential(ctx); err != nil {
		return notification.Failed(req.ID, err.Error())
	}

	contact, err := t.directory.GetRecipientInfo(ctx, req.RecipientID, req.TenantID)
	if err != nil {
		return notification.Failed(req.ID, err.Error())
	}

	msg, err := t.buildMessage(req, rendered, contact)
	if err != nil {
		return notification.Failed(req.ID, err.Error())
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return notification.Failed(req.ID, err.Error())
	}

	if err := t.wire.send(ctx, t.cfg.From, contact.Email, msg.body); err != nil {
		t.log.Error("email send failed", map[string]interface{}{
			"notificationId": req.ID,
			"error":          err.Error(),
		})
		return notification.Failed(req.ID, apperrors.NewEmailSendFailedError(err).Error())
	}

	elapsed := time.Since(started)
	metrics.EmailSendDuration.Observe(elapsed.Seconds())
	t.log.Info("email sent", map[string]interface{}{
		"notificationId": req.ID,
		"durationMs":     elapsed.Milliseconds(),
	})

	now := time.Now().UTC()
	return &notification.Response{
		ID:         req.ID,
		Status:     notification.StatusSent,
		SentAt:     &now,
		MessageID:  msg.messageID,
		TrackingID: msg.trackingID,
	}
}

// SendBulk processes requests in fixed-size batches with one concurrent
// send per item and a smoothing delay between batches. Results correlate to
// inputs by position; one item's failure never aborts the batch.
func (t *EmailTransport) SendBulk(ctx context.Context, reqs []*notification.Request, rendered map[string]*notification.RenderedTemplate) []*notification.Response {
	responses := make([]*notification.Response, len(reqs))
	batchSize := t.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for start := 0; start < len(reqs); start += batchSize {
		end := start + batchSize
		if end > len(reqs) {
			end = len(reqs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				req := reqs[idx]
				tmpl, ok := rendered[req.TemplateID]
				if !ok {
					responses[idx] = notification.Failed(req.ID,
						apperrors.NewTemplateNotFoundError(req.TemplateID).Error())
					return
				}
				responses[idx] = t.sendOne(ctx, req, tmpl)
			}(i)
		}
		wg.Wait()

		if end < len(reqs) {
			select {
			case <-ctx.Done():
				for i := end; i < len(reqs); i++ {
					responses[i] = notification.Failed(reqs[i].ID, ctx.Err().Error())
				}
				return responses
			case <-time.After(time.Duration(t.cfg.BatchDelayMs) * time.Millisecond):
			}
		}
	}
	return responses
}

type builtMessage struct {
	body       []byte
	messageID  string
	trackingID string
}

// buildMessage assembles the MIME message with correlation headers, the
// unsubscribe header and, for high/critical priority, the open-tracking
// pixel.
func (t *EmailTransport) buildMessage(req *notification.Request, rendered *notification.RenderedTemplate, contact *directory.Contact) (*builtMessage, error) {
	trackingID := uuid.New().String()
	domain := t.cfg.From
	if at := strings.LastIndex(domain, "@"); at >= 0 {
		domain = domain[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", trackingID, domain)

	unsubToken, err := t.signer.Sign(req.RecipientID, req.TenantID, notification.ChannelEmail)
	if err != nil {
		return nil, fmt.Errorf("sign unsubscribe token: %w", err)
	}

	htmlBody := rendered.HTMLBody
	if req.Priority.Tracked() {
		pixel := fmt.Sprintf(
			`<img src="%s/track/open/%s" width="1" height="1" alt="" style="display:none;"/>`,
			t.baseURL, req.ID,
		)
		if idx := strings.LastIndex(htmlBody, "</body>"); idx >= 0 {
			htmlBody = htmlBody[:idx] + pixel + htmlBody[idx:]
		} else {
			htmlBody += pixel
		}
	}

	from := t.cfg.From
	if t.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", t.cfg.FromName), t.cfg.From)
	}
	to := contact.Email
	if contact.Name != "" {
		to = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", contact.Name), contact.Email)
	}

	boundary := "b-" + uuid.New().String()
	var b strings.Builder
	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	writeHeader("From", from)
	writeHeader("To", to)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", rendered.Subject))
	writeHeader("Message-ID", messageID)
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	writeHeader("X-Tenant-ID", req.TenantID)
	writeHeader("X-Notification-Type", string(req.Type))
	writeHeader("X-Notification-Priority", string(req.Priority))
	writeHeader("X-Notification-ID", req.ID)
	writeHeader("List-Unsubscribe", fmt.Sprintf("<%s/unsubscribe?token=%s>", t.baseURL, unsubToken))
	b.WriteString("\r\n")

	writePart := func(contentType, body string) {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + contentType + "; charset=utf-8\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(wrapBase64(base64.StdEncoding.EncodeToString([]byte(body))))
		b.WriteString("\r\n")
	}
	writePart("text/plain", rendered.TextBody)
	writePart("text/html", htmlBody)
	b.WriteString("--" + boundary + "--\r\n")

	return &builtMessage{
		body:       []byte(b.String()),
		messageID:  messageID,
		trackingID: trackingID,
	}, nil
}

// wrapBase64 folds encoded content at the RFC 2045 line limit.
func wrapBase64(s string) string {
	const lineLen = 76
	var b strings.Builder
	for len(s) > lineLen {
		b.WriteString(s[:lineLen])
		b.WriteString("\r\n")
		s = s[lineLen:]
	}
	b.WriteString(s)
	return b.String()
}
