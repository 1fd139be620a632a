package transport

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/notification"
)

// UnsubscribeSigner mints and verifies the signed tokens carried in the
// List-Unsubscribe header and consumed by the unsubscribe endpoint.
type UnsubscribeSigner struct {
	key []byte
}

func NewUnsubscribeSigner(key string) *UnsubscribeSigner {
	return &UnsubscribeSigner{key: []byte(key)}
}

type unsubscribeClaims struct {
	UserID   string `json:"uid"`
	TenantID string `json:"tid"`
	Channel  string `json:"ch"`
	jwt.RegisteredClaims
}

// Sign issues a token scoped to one recipient and channel, valid for 90
// days to outlive mailbox retention of old messages.
func (s *UnsubscribeSigner) Sign(userID, tenantID string, channel notification.Channel) (string, error) {
	claims := unsubscribeClaims{
		UserID:   userID,
		TenantID: tenantID,
		Channel:  string(channel),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(90 * 24 * time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify parses a token and returns the recipient scope it grants.
func (s *UnsubscribeSigner) Verify(token string) (userID, tenantID string, channel notification.Channel, err error) {
	var claims unsubscribeClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		detail := "parse failed"
		if err != nil {
			detail = err.Error()
		}
		return "", "", "", apperrors.NewUnsubscribeTokenInvalidError(detail)
	}
	return claims.UserID, claims.TenantID, notification.Channel(claims.Channel), nil
}
