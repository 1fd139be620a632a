// Package preferences decides whether and how a notification request may be
// delivered given the recipient's stored policy.
package preferences

import "github.com/getailigned/notification-service/internal/notification"

// ShouldSend applies the delivery policy to one request. Pure function,
// first matching rule wins:
//  1. no stored preferences: send
//  2. the request's type is explicitly disabled: suppress
//  3. the request's channel is not in the type's allowed set: suppress
//  4. otherwise the global per-channel boolean decides; unknown channels
//     default to send
func ShouldSend(req *notification.Request, prefs *notification.Preferences) bool {
	if prefs == nil {
		return true
	}

	if tp, ok := prefs.NotificationTypes[req.Type]; ok {
		if !tp.Enabled {
			return false
		}
		if len(tp.Channels) > 0 && !containsChannel(tp.Channels, req.Channel) {
			return false
		}
	}

	switch req.Channel {
	case notification.ChannelEmail:
		return prefs.EmailNotifications
	case notification.ChannelInApp:
		return prefs.InAppNotifications
	case notification.ChannelSMS:
		return prefs.SMSNotifications
	case notification.ChannelPush:
		return prefs.PushNotifications
	default:
		return true
	}
}

func containsChannel(channels []notification.Channel, c notification.Channel) bool {
	for _, ch := range channels {
		if ch == c {
			return true
		}
	}
	return false
}

// Defaults returns the permissive fallback policy used when a recipient has
// no stored record: every channel enabled except SMS.
func Defaults(userID, tenantID string) *notification.Preferences {
	return &notification.Preferences{
		UserID:             userID,
		TenantID:           tenantID,
		EmailNotifications: true,
		InAppNotifications: true,
		SMSNotifications:   false,
		PushNotifications:  true,
		DigestFrequency:    "daily",
		IsDefault:          true,
	}
}
