// Package server exposes the HTTP surface of the notification dispatcher:
// dispatch endpoints, preference management, delivery tracking and
// operational probes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getailigned/notification-service/internal/common/config"
	"github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/notification"
	"github.com/getailigned/notification-service/internal/store"
	"github.com/getailigned/notification-service/internal/transport"
)

// Dispatcher is the slice of the dispatch engine the HTTP layer uses.
type Dispatcher interface {
	Send(ctx context.Context, req *notification.Request) *notification.Response
	Bulk(ctx context.Context, reqs []*notification.Request, width int) *notification.BulkResult
}

// NotificationReader reads dispatch records for tracking and metrics.
type NotificationReader interface {
	MarkDelivered(ctx context.Context, id string) error
	Metrics(ctx context.Context, tenantID string, days int) (*store.TenantMetrics, error)
}

// PreferenceStore manages per-user delivery policies.
type PreferenceStore interface {
	GetOrDefaults(ctx context.Context, userID, tenantID string) (*notification.Preferences, error)
	Save(ctx context.Context, prefs *notification.Preferences) error
	DisableChannel(ctx context.Context, userID, tenantID string, channel notification.Channel) error
}

// HealthCheck probes one dependency; nil means healthy.
type HealthCheck func(ctx context.Context) error

// Server is the HTTP front of the dispatcher.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	engine  Dispatcher
	records NotificationReader
	prefs   PreferenceStore
	signer  *transport.UnsubscribeSigner
	checks  map[string]HealthCheck
	log     logger.Logger
}

func New(
	cfg *config.Config,
	engine Dispatcher,
	records NotificationReader,
	prefs PreferenceStore,
	signer *transport.UnsubscribeSigner,
	checks map[string]HealthCheck,
	log logger.Logger,
) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		records: records,
		prefs:   prefs,
		signer:  signer,
		checks:  checks,
		log:     log.WithFields(map[string]interface{}{"component": "http"}),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler(s.log)
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(RequestLogger(s.log))

	e.POST("/notifications/send", s.handleSend)
	e.POST("/notifications/bulk", s.handleBulk)
	e.GET("/preferences/:userId", s.handleGetPreferences)
	e.PUT("/preferences/:userId", s.handlePutPreferences)
	e.GET("/metrics", s.handleMetrics)
	e.GET("/metrics/prometheus", echo.WrapHandler(promhttp.Handler()))
	e.GET("/track/open/:id", s.handleTrackOpen)
	e.GET("/unsubscribe", s.handleUnsubscribe)
	e.GET("/health", s.handleHealth)

	s.echo = e
	return s
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.log.Info("http server listening", map[string]interface{}{"addr": addr})
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type sendRequest struct {
	TenantID    string                 `json:"tenantId" validate:"required"`
	RecipientID string                 `json:"recipientId" validate:"required"`
	Type        string                 `json:"type" validate:"required"`
	Channel     string                 `json:"channel" validate:"required"`
	Priority    string                 `json:"priority"`
	TemplateID  string                 `json:"templateId" validate:"required"`
	Data        map[string]interface{} `json:"data"`
	ScheduledAt *time.Time             `json:"scheduledAt"`
	ExpiresAt   *time.Time             `json:"expiresAt"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (r *sendRequest) toNotification() *notification.Request {
	priority := notification.Priority(r.Priority)
	if priority.Rank() == 0 {
		priority = notification.PriorityMedium
	}
	return &notification.Request{
		TenantID:    r.TenantID,
		RecipientID: r.RecipientID,
		Type:        notification.Type(r.Type),
		Channel:     notification.Channel(r.Channel),
		Priority:    priority,
		TemplateID:  r.TemplateID,
		Data:        r.Data,
		ScheduledAt: r.ScheduledAt,
		ExpiresAt:   r.ExpiresAt,
		Metadata:    r.Metadata,
	}
}

// handleSend dispatches a single notification synchronously. Failed
// dispatches are regular outcomes, not HTTP errors.
func (s *Server) handleSend(c echo.Context) error {
	var body sendRequest
	if err := c.Bind(&body); err != nil {
		return errors.NewValidationFailedError("malformed request body")
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	resp := s.engine.Send(c.Request().Context(), body.toNotification())
	return JSON(c, http.StatusOK, resp)
}

type bulkRequest struct {
	Notifications []sendRequest `json:"notifications" validate:"required,min=1,dive"`
}

func (s *Server) handleBulk(c echo.Context) error {
	var body bulkRequest
	if err := c.Bind(&body); err != nil {
		return errors.NewValidationFailedError("malformed request body")
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	reqs := make([]*notification.Request, len(body.Notifications))
	for i := range body.Notifications {
		reqs[i] = body.Notifications[i].toNotification()
	}

	result := s.engine.Bulk(c.Request().Context(), reqs, s.cfg.Dispatch.BulkConcurrency)
	return JSON(c, http.StatusOK, result)
}

func (s *Server) handleGetPreferences(c echo.Context) error {
	userID := c.Param("userId")
	tenantID := c.QueryParam("tenantId")
	if tenantID == "" {
		return errors.NewValidationFailedError("tenantId query parameter is required")
	}

	prefs, err := s.prefs.GetOrDefaults(c.Request().Context(), userID, tenantID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(c echo.Context) error {
	var prefs notification.Preferences
	if err := c.Bind(&prefs); err != nil {
		return errors.NewValidationFailedError("malformed request body")
	}
	prefs.UserID = c.Param("userId")
	if prefs.TenantID == "" {
		return errors.NewValidationFailedError("tenantId is required")
	}
	prefs.IsDefault = false

	if err := s.prefs.Save(c.Request().Context(), &prefs); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, &prefs)
}

func (s *Server) handleMetrics(c echo.Context) error {
	tenantID := c.QueryParam("tenantId")
	if tenantID == "" {
		return errors.NewValidationFailedError("tenantId query parameter is required")
	}

	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return errors.NewValidationFailedError("days must be a positive integer")
		}
		days = parsed
	}

	m, err := s.records.Metrics(c.Request().Context(), tenantID, days)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, m)
}

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// handleTrackOpen records an email open and always serves the pixel. The
// mail client must never see an error here.
func (s *Server) handleTrackOpen(c echo.Context) error {
	id := c.Param("id")
	if err := s.records.MarkDelivered(c.Request().Context(), id); err != nil {
		s.log.WithError(err).Warn("open tracking update failed", map[string]interface{}{
			"notificationId": id,
		})
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/gif", trackingPixel)
}

func (s *Server) handleUnsubscribe(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.NewUnsubscribeTokenInvalidError("token query parameter is required")
	}

	userID, tenantID, channel, err := s.signer.Verify(token)
	if err != nil {
		return err
	}

	if err := s.prefs.DisableChannel(c.Request().Context(), userID, tenantID, channel); err != nil {
		return err
	}

	s.log.Info("channel unsubscribed", map[string]interface{}{
		"userId":  userID,
		"channel": string(channel),
	})
	return c.HTML(http.StatusOK, fmt.Sprintf(
		"<html><body><h3>You have been unsubscribed</h3><p>You will no longer receive %s notifications.</p></body></html>",
		channel,
	))
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	components := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	return c.JSON(status, map[string]interface{}{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}
