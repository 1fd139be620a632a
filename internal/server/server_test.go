package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getailigned/notification-service/internal/common/config"
	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/notification"
	"github.com/getailigned/notification-service/internal/preferences"
	"github.com/getailigned/notification-service/internal/store"
	"github.com/getailigned/notification-service/internal/transport"
)

type fakeDispatcher struct {
	requests []*notification.Request
}

func (f *fakeDispatcher) Send(_ context.Context, req *notification.Request) *notification.Response {
	f.requests = append(f.requests, req)
	now := time.Now().UTC()
	return &notification.Response{ID: "n-1", Status: notification.StatusSent, SentAt: &now}
}

func (f *fakeDispatcher) Bulk(ctx context.Context, reqs []*notification.Request, _ int) *notification.BulkResult {
	result := &notification.BulkResult{Items: make([]notification.BulkItem, len(reqs))}
	for i, req := range reqs {
		resp := f.Send(ctx, req)
		result.Items[i] = notification.BulkItem{Index: i, Success: true, Response: resp}
	}
	result.Tally()
	return result
}

type fakeRecords struct {
	delivered    []string
	deliveredErr error
}

func (f *fakeRecords) MarkDelivered(_ context.Context, id string) error {
	if f.deliveredErr != nil {
		return f.deliveredErr
	}
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeRecords) Metrics(_ context.Context, tenantID string, days int) (*store.TenantMetrics, error) {
	return &store.TenantMetrics{
		TenantID: tenantID,
		Days:     days,
		Total:    3,
		ByStatus: map[string]int{"sent": 3},
		ByChannel: map[string]int{
			"email": 3,
		},
	}, nil
}

type fakePrefStore struct {
	saved    *notification.Preferences
	disabled []notification.Channel
}

func (f *fakePrefStore) GetOrDefaults(_ context.Context, userID, tenantID string) (*notification.Preferences, error) {
	return preferences.Defaults(userID, tenantID), nil
}

func (f *fakePrefStore) Save(_ context.Context, prefs *notification.Preferences) error {
	f.saved = prefs
	return nil
}

func (f *fakePrefStore) DisableChannel(_ context.Context, _, _ string, channel notification.Channel) error {
	f.disabled = append(f.disabled, channel)
	return nil
}

type serverFixture struct {
	server  *Server
	engine  *fakeDispatcher
	records *fakeRecords
	prefs   *fakePrefStore
	signer  *transport.UnsubscribeSigner
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Port = 0
	cfg.Dispatch.BulkConcurrency = 5

	engine := &fakeDispatcher{}
	records := &fakeRecords{}
	prefs := &fakePrefStore{}
	signer := transport.NewUnsubscribeSigner("test-key")

	checks := map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"email":    func(context.Context) error { return nil },
	}

	srv := New(cfg, engine, records, prefs, signer, checks, logger.NewTestLogger(t))
	return &serverFixture{server: srv, engine: engine, records: records, prefs: prefs, signer: signer}
}

func (f *serverFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSendEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/notifications/send", `{
		"tenantId": "tenant-1",
		"recipientId": "user-1",
		"type": "work_item_assigned",
		"channel": "email",
		"priority": "high",
		"templateId": "work_item_assigned",
		"data": {"workItemTitle": "x"}
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.engine.requests, 1)
	assert.Equal(t, notification.PriorityHigh, f.engine.requests[0].Priority)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Nil(t, envelope.Error)
}

func TestSendEndpointDefaultsPriority(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/notifications/send", `{
		"tenantId": "tenant-1",
		"recipientId": "user-1",
		"type": "digest",
		"channel": "email",
		"templateId": "digest"
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.engine.requests, 1)
	assert.Equal(t, notification.PriorityMedium, f.engine.requests[0].Priority)
}

func TestSendEndpointValidation(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/notifications/send", `{"tenantId": "tenant-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.engine.requests)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "VALIDATION_FAILED", envelope.Error.Code)
}

func TestBulkEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/notifications/bulk", `{
		"notifications": [
			{"tenantId": "t1", "recipientId": "u1", "type": "digest", "channel": "email", "templateId": "digest"},
			{"tenantId": "t1", "recipientId": "u2", "type": "digest", "channel": "email", "templateId": "digest"}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.engine.requests, 2)
}

func TestBulkEndpointRejectsEmptyList(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/notifications/bulk", `{"notifications": []}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPreferences(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/preferences/user-1?tenantId=tenant-1", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data notification.Preferences `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "user-1", envelope.Data.UserID)
	assert.True(t, envelope.Data.IsDefault)
}

func TestGetPreferencesRequiresTenant(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/preferences/user-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutPreferences(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPut, "/preferences/user-1", `{
		"tenantId": "tenant-1",
		"emailNotifications": false,
		"digestFrequency": "weekly"
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.prefs.saved)
	assert.Equal(t, "user-1", f.prefs.saved.UserID)
	assert.False(t, f.prefs.saved.EmailNotifications)
	assert.False(t, f.prefs.saved.IsDefault)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/metrics?tenantId=tenant-1&days=30", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data store.TenantMetrics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 30, envelope.Data.Days)
	assert.Equal(t, 3, envelope.Data.Total)
}

func TestTrackOpenServesPixel(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/track/open/n-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, trackingPixel, rec.Body.Bytes())
	assert.Equal(t, []string{"n-1"}, f.records.delivered)
}

func TestTrackOpenSwallowsStoreErrors(t *testing.T) {
	f := newServerFixture(t)
	f.records.deliveredErr = errors.New("db down")

	rec := f.do(http.MethodGet, "/track/open/n-1", "")

	// The pixel always renders; mail clients never see failures.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, trackingPixel, rec.Body.Bytes())
}

func TestUnsubscribe(t *testing.T) {
	f := newServerFixture(t)

	token, err := f.signer.Sign("user-1", "tenant-1", notification.ChannelEmail)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/unsubscribe?token="+token, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsubscribed")
	assert.Equal(t, []notification.Channel{notification.ChannelEmail}, f.prefs.disabled)
}

func TestUnsubscribeInvalidToken(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/unsubscribe?token=garbage", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.prefs.disabled)
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.Contains(t, rec.Body.String(), `"email":"ok"`)
}

func TestHealthEndpointDegraded(t *testing.T) {
	cfg := &config.Config{}
	checks := map[string]HealthCheck{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
		"email":    func(context.Context) error { return errors.New("email channel not configured") },
	}
	srv := New(cfg, &fakeDispatcher{}, &fakeRecords{}, &fakePrefStore{},
		transport.NewUnsubscribeSigner("k"), checks, logger.NewTestLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
	assert.Contains(t, rec.Body.String(), "email channel not configured")
}
