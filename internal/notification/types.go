// Package notification holds the core domain types shared by the dispatch
// pipeline, the stores and the transports.
package notification

import "time"

// Channel is the delivery medium for a notification.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelInApp   Channel = "in_app"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelSlack   Channel = "slack"
	ChannelTeams   Channel = "teams"
	ChannelWebhook Channel = "webhook"
)

// KnownChannels lists every channel the dispatcher can route to. Only email
// has a real transport; the rest resolve to deterministic stubs.
var KnownChannels = []Channel{
	ChannelEmail, ChannelInApp, ChannelSMS, ChannelPush,
	ChannelSlack, ChannelTeams, ChannelWebhook,
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	for _, k := range KnownChannels {
		if c == k {
			return true
		}
	}
	return false
}

// Type is the closed set of notification kinds.
type Type string

const (
	TypeWorkItemAssigned    Type = "work_item_assigned"
	TypeWorkItemCreated     Type = "work_item_created"
	TypeWorkItemCompleted   Type = "work_item_completed"
	TypeApprovalRequested   Type = "approval_requested"
	TypeEscalationTriggered Type = "escalation_triggered"
	TypeSLABreach           Type = "sla_breach"
	TypeDigest              Type = "digest"
)

// Priority orders notifications for preference checks, sweep ordering and
// transport enrichment (tracking pixel for high/critical).
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the sort weight of a priority; higher dispatches first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Tracked reports whether deliveries at this priority carry an open-tracking
// pixel.
func (p Priority) Tracked() bool {
	return p == PriorityHigh || p == PriorityCritical
}

// Status is the lifecycle state of a notification request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is expected. Sent is
// terminal except for the external tracking callback that may promote it to
// delivered.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Request is a unit of intent to notify one recipient. Immutable once
// created except for its lifecycle status, which is owned by the dispatch
// engine.
type Request struct {
	ID          string                 `json:"id,omitempty" db:"id"`
	TenantID    string                 `json:"tenantId" db:"tenant_id"`
	RecipientID string                 `json:"recipientId" db:"recipient_id"`
	Type        Type                   `json:"type" db:"type"`
	Channel     Channel                `json:"channel" db:"channel"`
	Priority    Priority               `json:"priority" db:"priority"`
	TemplateID  string                 `json:"templateId" db:"template_id"`
	Data        map[string]interface{} `json:"data" db:"data"`
	ScheduledAt *time.Time             `json:"scheduledAt,omitempty" db:"scheduled_at"`
	ExpiresAt   *time.Time             `json:"expiresAt,omitempty" db:"expires_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// Expired reports whether the request's expiry has elapsed at the given
// instant. Requests without an expiry never expire.
func (r *Request) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Response is the recorded outcome of one dispatch attempt.
type Response struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	MessageID   string     `json:"messageId,omitempty"`
	TrackingID  string     `json:"trackingId,omitempty"`
}

// Failed builds a failed response for the given request id.
func Failed(id, errMsg string) *Response {
	now := time.Now().UTC()
	return &Response{
		ID:       id,
		Status:   StatusFailed,
		FailedAt: &now,
		Error:    errMsg,
	}
}

// RenderedTemplate is a compiled template ready for transport delivery.
type RenderedTemplate struct {
	Subject  string `json:"subject"`
	HTMLBody string `json:"htmlBody"`
	TextBody string `json:"textBody"`
}

// TypePreference controls delivery of a single notification type.
type TypePreference struct {
	Enabled   bool      `json:"enabled"`
	Channels  []Channel `json:"channels"`
	Immediate bool      `json:"immediate"`
}

// WorkingHours is the recipient's preferred delivery window. It is stored
// and served through the preferences API but not enforced as a send-time
// gate.
type WorkingHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
	Days     []int  `json:"days"`
}

// Preferences is the per (user, tenant) delivery policy.
type Preferences struct {
	UserID             string                  `json:"userId"`
	TenantID           string                  `json:"tenantId"`
	EmailNotifications bool                    `json:"emailNotifications"`
	InAppNotifications bool                    `json:"inAppNotifications"`
	SMSNotifications   bool                    `json:"smsNotifications"`
	PushNotifications  bool                    `json:"pushNotifications"`
	DigestFrequency    string                  `json:"digestFrequency"`
	WorkingHours       *WorkingHours           `json:"workingHours,omitempty"`
	NotificationTypes  map[Type]TypePreference `json:"notificationTypes,omitempty"`
	IsDefault          bool                    `json:"isDefault,omitempty"`
	UpdatedAt          time.Time               `json:"updatedAt,omitempty"`
}

// BulkItem is the per-item outcome of a bulk dispatch, correlated by the
// original input index. Completion order carries no meaning.
type BulkItem struct {
	Index    int       `json:"index"`
	Success  bool      `json:"success"`
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// BulkResult aggregates a bulk dispatch. Counts are derived from the items,
// never authoritative state.
type BulkResult struct {
	Items      []BulkItem `json:"items"`
	Processed  int        `json:"processed"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
}

// Tally recomputes the aggregate counters from the items.
func (b *BulkResult) Tally() {
	b.Processed = len(b.Items)
	b.Successful = 0
	b.Failed = 0
	for _, item := range b.Items {
		if item.Success {
			b.Successful++
		} else {
			b.Failed++
		}
	}
}
