// Package dispatch drives one notification request through the full
// pipeline: preference filtering, expiry check, rendering, transport
// delivery, status persistence and event republishing.
package dispatch

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/common/metrics"
	"github.com/getailigned/notification-service/internal/notification"
	"github.com/getailigned/notification-service/internal/preferences"
	"github.com/getailigned/notification-service/internal/transport"
)

// Store is the persistence surface the engine needs.
type Store interface {
	Save(ctx context.Context, req *notification.Request) (string, error)
	UpdateStatus(ctx context.Context, id string, resp *notification.Response) error
}

// PreferenceReader loads the recipient's delivery policy; (nil, nil) means
// no stored record.
type PreferenceReader interface {
	Get(ctx context.Context, userID, tenantID string) (*notification.Preferences, error)
}

// Renderer compiles a template id against request data.
type Renderer interface {
	Compile(templateID string, data map[string]interface{}) (*notification.RenderedTemplate, error)
}

// Publisher emits outcome events to the message bus.
type Publisher interface {
	Publish(routingKey string, payload interface{}, headers map[string]interface{}) error
}

// Engine owns the request state machine. Requests the engine persists are
// born in sending and settle to sent, failed or cancelled; externally
// queued rows wait in pending until a sweep claim promotes them to sending.
// Only the tracking callback promotes sent to delivered.
type Engine struct {
	store      Store
	prefs      PreferenceReader
	renderer   Renderer
	transports *transport.Registry
	publisher  Publisher
	log        logger.Logger
}

func NewEngine(store Store, prefs PreferenceReader, renderer Renderer, transports *transport.Registry, publisher Publisher, log logger.Logger) *Engine {
	return &Engine{
		store:      store,
		prefs:      prefs,
		renderer:   renderer,
		transports: transports,
		publisher:  publisher,
		log:        log.WithFields(map[string]interface{}{"component": "dispatch-engine"}),
	}
}

// Send dispatches one request end-to-end. It never returns an error and
// never lets a panic escape: every failure is a failed Response, persisted
// when the request already has an id.
func (e *Engine) Send(ctx context.Context, req *notification.Request) (resp *notification.Response) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("dispatch panicked", map[string]interface{}{
				"notificationId": req.ID,
				"panic":          fmt.Sprintf("%v", r),
			})
			resp = notification.Failed(req.ID, fmt.Sprintf("dispatch panic: %v", r))
			e.persistOutcome(ctx, req, resp)
		}
		metrics.NotificationsDispatched.WithLabelValues(string(req.Channel), string(resp.Status)).Inc()
		metrics.DispatchDuration.WithLabelValues(string(req.Channel)).Observe(time.Since(started).Seconds())
	}()

	if err := validateRequest(req); err != nil {
		return notification.Failed(req.ID, err.Error())
	}

	// Persisting first makes the request addressable for status updates.
	// The row inserts as sending, so a sweep tick firing while this send
	// is in flight has nothing to claim.
	if req.ID == "" {
		if _, err := e.store.Save(ctx, req); err != nil {
			return notification.Failed(req.ID, err.Error())
		}
	}

	prefs, err := e.prefs.Get(ctx, req.RecipientID, req.TenantID)
	if err != nil {
		resp = notification.Failed(req.ID, err.Error())
		e.persistOutcome(ctx, req, resp)
		return resp
	}

	if !preferences.ShouldSend(req, prefs) {
		resp = &notification.Response{ID: req.ID, Status: notification.StatusCancelled}
		e.persistOutcome(ctx, req, resp)
		e.log.Info("notification suppressed by preferences", map[string]interface{}{
			"notificationId": req.ID,
			"type":           string(req.Type),
			"channel":        string(req.Channel),
		})
		return resp
	}

	if req.Expired(time.Now()) {
		resp = notification.Failed(req.ID, apperrors.NewNotificationExpiredError(req.ID).Message)
		e.persistOutcome(ctx, req, resp)
		return resp
	}

	rendered, err := e.renderer.Compile(req.TemplateID, req.Data)
	if err != nil {
		resp = notification.Failed(req.ID, err.Error())
		e.persistOutcome(ctx, req, resp)
		e.publishOutcome(req, resp)
		return resp
	}

	tr, ok := e.transports.For(req.Channel)
	if !ok {
		resp = notification.Failed(req.ID, apperrors.NewChannelUnsupportedError(string(req.Channel)).Error())
		e.persistOutcome(ctx, req, resp)
		return resp
	}

	resp = tr.Send(ctx, req, rendered)
	e.persistOutcome(ctx, req, resp)
	e.publishOutcome(req, resp)
	return resp
}

func (e *Engine) persistOutcome(ctx context.Context, req *notification.Request, resp *notification.Response) {
	if req.ID == "" {
		return
	}
	if err := e.store.UpdateStatus(ctx, req.ID, resp); err != nil {
		e.log.Error("status update failed", map[string]interface{}{
			"notificationId": req.ID,
			"status":         string(resp.Status),
			"error":          err.Error(),
		})
	}
}

// publishOutcome emits notification.<channel>.<status> with the original
// request for downstream consumers. Publish failures are logged, never
// propagated: the dispatch outcome stays the transport's outcome.
func (e *Engine) publishOutcome(req *notification.Request, resp *notification.Response) {
	if e.publisher == nil {
		return
	}
	routingKey := fmt.Sprintf("notification.%s.%s", req.Channel, resp.Status)
	payload := map[string]interface{}{
		"notification": req,
		"status":       resp.Status,
		"error":        resp.Error,
	}
	headers := map[string]interface{}{
		"tenant_id":       req.TenantID,
		"notification_id": req.ID,
	}
	if err := e.publisher.Publish(routingKey, payload, headers); err != nil {
		e.log.Warn("outcome publish failed", map[string]interface{}{
			"routingKey": routingKey,
			"error":      err.Error(),
		})
	}
}

func validateRequest(req *notification.Request) error {
	switch {
	case req.TenantID == "":
		return apperrors.NewValidationFailedError("tenantId is required")
	case req.RecipientID == "":
		return apperrors.NewValidationFailedError("recipientId is required")
	case req.TemplateID == "":
		return apperrors.NewValidationFailedError("templateId is required")
	case !req.Channel.Valid():
		return apperrors.NewChannelUnsupportedError(string(req.Channel))
	}
	return nil
}
