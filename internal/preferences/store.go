package preferences

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/notification"
)

const cacheTTL = 5 * time.Minute

// Store persists delivery preferences in Postgres with a read-through Redis
// cache. Preferences are read on every dispatch and mutated only through
// Save, so a short TTL cache-aside is enough.
type Store struct {
	db    *sql.DB
	cache *redis.Client
	log   logger.Logger
}

func NewStore(db *sql.DB, cache *redis.Client, log logger.Logger) *Store {
	return &Store{
		db:    db,
		cache: cache,
		log:   log.WithFields(map[string]interface{}{"component": "preference-store"}),
	}
}

func cacheKey(userID, tenantID string) string {
	return fmt.Sprintf("prefs:%s:%s", tenantID, userID)
}

// Get returns the stored preferences, or (nil, nil) when the recipient has
// no record. Absence is not an error; the filter falls back to defaults.
func (s *Store) Get(ctx context.Context, userID, tenantID string) (*notification.Preferences, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey(userID, tenantID)).Result(); err == nil {
			var prefs notification.Preferences
			if err := json.Unmarshal([]byte(raw), &prefs); err == nil {
				return &prefs, nil
			}
			// Corrupt cache entry falls through to the database read.
		}
	}

	prefs, err := s.load(ctx, userID, tenantID)
	if err != nil || prefs == nil {
		return prefs, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(prefs); err == nil {
			if err := s.cache.Set(ctx, cacheKey(userID, tenantID), raw, cacheTTL).Err(); err != nil {
				s.log.Warn("preference cache write failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
	return prefs, nil
}

// GetOrDefaults is the API read path: missing records come back as the
// permissive defaults with IsDefault set.
func (s *Store) GetOrDefaults(ctx context.Context, userID, tenantID string) (*notification.Preferences, error) {
	prefs, err := s.Get(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return Defaults(userID, tenantID), nil
	}
	return prefs, nil
}

func (s *Store) load(ctx context.Context, userID, tenantID string) (*notification.Preferences, error) {
	const query = `
		SELECT email_notifications, in_app_notifications, sms_notifications,
		       push_notifications, digest_frequency, working_hours,
		       notification_types, updated_at
		FROM notification_preferences
		WHERE user_id = $1 AND tenant_id = $2`

	var (
		prefs        notification.Preferences
		workingHours []byte
		typePrefs    []byte
	)
	prefs.UserID = userID
	prefs.TenantID = tenantID

	err := s.db.QueryRowContext(ctx, query, userID, tenantID).Scan(
		&prefs.EmailNotifications,
		&prefs.InAppNotifications,
		&prefs.SMSNotifications,
		&prefs.PushNotifications,
		&prefs.DigestFrequency,
		&workingHours,
		&typePrefs,
		&prefs.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("getPreferences", err)
	}

	if len(workingHours) > 0 {
		if err := json.Unmarshal(workingHours, &prefs.WorkingHours); err != nil {
			return nil, fmt.Errorf("decode working_hours: %w", err)
		}
	}
	if len(typePrefs) > 0 {
		if err := json.Unmarshal(typePrefs, &prefs.NotificationTypes); err != nil {
			return nil, fmt.Errorf("decode notification_types: %w", err)
		}
	}
	return &prefs, nil
}

// Save upserts the preference record and invalidates the cache entry.
func (s *Store) Save(ctx context.Context, prefs *notification.Preferences) error {
	workingHours, err := json.Marshal(prefs.WorkingHours)
	if err != nil {
		return fmt.Errorf("encode working_hours: %w", err)
	}
	typePrefs, err := json.Marshal(prefs.NotificationTypes)
	if err != nil {
		return fmt.Errorf("encode notification_types: %w", err)
	}

	const query = `
		INSERT INTO notification_preferences
			(user_id, tenant_id, email_notifications, in_app_notifications,
			 sms_notifications, push_notifications, digest_frequency,
			 working_hours, notification_types, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (user_id, tenant_id) DO UPDATE SET
			email_notifications = EXCLUDED.email_notifications,
			in_app_notifications = EXCLUDED.in_app_notifications,
			sms_notifications = EXCLUDED.sms_notifications,
			push_notifications = EXCLUDED.push_notifications,
			digest_frequency = EXCLUDED.digest_frequency,
			working_hours = EXCLUDED.working_hours,
			notification_types = EXCLUDED.notification_types,
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query,
		prefs.UserID, prefs.TenantID,
		prefs.EmailNotifications, prefs.InAppNotifications,
		prefs.SMSNotifications, prefs.PushNotifications,
		prefs.DigestFrequency, workingHours, typePrefs,
	); err != nil {
		return apperrors.NewQueryExecutionFailedError("savePreferences", err)
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, cacheKey(prefs.UserID, prefs.TenantID)).Err(); err != nil {
			s.log.Warn("preference cache invalidation failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// DisableChannel flips one global channel boolean off, used by the
// unsubscribe endpoint. Missing records start from the defaults.
func (s *Store) DisableChannel(ctx context.Context, userID, tenantID string, channel notification.Channel) error {
	prefs, err := s.GetOrDefaults(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	prefs.IsDefault = false

	switch channel {
	case notification.ChannelEmail:
		prefs.EmailNotifications = false
	case notification.ChannelInApp:
		prefs.InAppNotifications = false
	case notification.ChannelSMS:
		prefs.SMSNotifications = false
	case notification.ChannelPush:
		prefs.PushNotifications = false
	default:
		return apperrors.NewChannelUnsupportedError(string(channel))
	}

	return s.Save(ctx, prefs)
}
