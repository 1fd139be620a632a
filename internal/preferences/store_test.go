package preferences

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/notification"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	return NewStore(db, cache, logger.NewTestLogger(t)), mock, mr
}

func prefColumns() []string {
	return []string{
		"email_notifications", "in_app_notifications", "sms_notifications",
		"push_notifications", "digest_frequency", "working_hours",
		"notification_types", "updated_at",
	}
}

func TestGetLoadsAndCaches(t *testing.T) {
	store, mock, mr := newTestStore(t)

	mock.ExpectQuery("SELECT email_notifications").
		WithArgs("user-1", "tenant-1").
		WillReturnRows(sqlmock.NewRows(prefColumns()).
			AddRow(true, true, false, true, "daily", nil, nil, time.Now()))

	prefs, err := store.Get(context.Background(), "user-1", "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, prefs)
	assert.True(t, prefs.EmailNotifications)
	assert.False(t, prefs.SMSNotifications)
	assert.Equal(t, "daily", prefs.DigestFrequency)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Second read is served from the cache; no further query is expected.
	cached, err := store.Get(context.Background(), "user-1", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, prefs.EmailNotifications, cached.EmailNotifications)
	assert.True(t, mr.Exists("prefs:tenant-1:user-1"))
}

func TestGetMissingRecordIsNotAnError(t *testing.T) {
	store, mock, mr := newTestStore(t)

	mock.ExpectQuery("SELECT email_notifications").
		WithArgs("user-2", "tenant-1").
		WillReturnRows(sqlmock.NewRows(prefColumns()))

	prefs, err := store.Get(context.Background(), "user-2", "tenant-1")
	require.NoError(t, err)
	assert.Nil(t, prefs)
	// Absence is never cached.
	assert.False(t, mr.Exists("prefs:tenant-1:user-2"))
}

func TestGetOrDefaultsFallsBack(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectQuery("SELECT email_notifications").
		WithArgs("user-3", "tenant-1").
		WillReturnRows(sqlmock.NewRows(prefColumns()))

	prefs, err := store.GetOrDefaults(context.Background(), "user-3", "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, prefs)
	assert.True(t, prefs.IsDefault)
	assert.True(t, prefs.EmailNotifications)
	assert.False(t, prefs.SMSNotifications)
	assert.Equal(t, "daily", prefs.DigestFrequency)
}

func TestGetDecodesTypePreferences(t *testing.T) {
	store, mock, _ := newTestStore(t)

	typePrefs, err := json.Marshal(map[notification.Type]notification.TypePreference{
		notification.TypeDigest: {Enabled: false},
	})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT email_notifications").
		WithArgs("user-4", "tenant-1").
		WillReturnRows(sqlmock.NewRows(prefColumns()).
			AddRow(true, true, false, true, "weekly", nil, typePrefs, time.Now()))

	prefs, err := store.Get(context.Background(), "user-4", "tenant-1")
	require.NoError(t, err)
	require.Contains(t, prefs.NotificationTypes, notification.TypeDigest)
	assert.False(t, prefs.NotificationTypes[notification.TypeDigest].Enabled)
}

func TestSaveUpsertsAndInvalidatesCache(t *testing.T) {
	store, mock, mr := newTestStore(t)

	require.NoError(t, mr.Set("prefs:tenant-1:user-5", "stale"))

	mock.ExpectExec("INSERT INTO notification_preferences").
		WithArgs("user-5", "tenant-1", false, true, false, true, "weekly",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), &notification.Preferences{
		UserID:             "user-5",
		TenantID:           "tenant-1",
		EmailNotifications: false,
		InAppNotifications: true,
		PushNotifications:  true,
		DigestFrequency:    "weekly",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.False(t, mr.Exists("prefs:tenant-1:user-5"))
}

func TestDisableChannelFlipsFlag(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectQuery("SELECT email_notifications").
		WithArgs("user-6", "tenant-1").
		WillReturnRows(sqlmock.NewRows(prefColumns()).
			AddRow(true, true, false, true, "daily", nil, nil, time.Now()))
	mock.ExpectExec("INSERT INTO notification_preferences").
		WithArgs("user-6", "tenant-1", false, true, false, true, "daily",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.DisableChannel(context.Background(), "user-6", "tenant-1", notification.ChannelEmail)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisableChannelRejectsUnknownChannel(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectQuery("SELECT email_notifications").
		WithArgs("user-7", "tenant-1").
		WillReturnRows(sqlmock.NewRows(prefColumns()))

	err := store.DisableChannel(context.Background(), "user-7", "tenant-1", notification.Channel("carrier-pigeon"))
	assert.Error(t, err)
}
