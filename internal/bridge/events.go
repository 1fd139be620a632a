// Package bridge maps workflow and work-item events from the message bus
// into notification requests, and publishes outcome events back.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/getailigned/notification-service/internal/notification"
)

// EventKind tags the decoded union of inbound bus events.
type EventKind string

const (
	KindWorkItemAssigned    EventKind = "work-item.assigned"
	KindWorkItemCreated     EventKind = "work-item.created"
	KindWorkItemCompleted   EventKind = "work-item.completed"
	KindApprovalRequested   EventKind = "workflow.approval-requested"
	KindEscalationTriggered EventKind = "workflow.escalation-triggered"
	KindSLABreach           EventKind = "workflow.sla-breach"
	KindDigestDue           EventKind = "workflow.digest-due"
	// KindUnrecognized marks event types the bridge does not understand;
	// they are acknowledged and ignored, never errors.
	KindUnrecognized EventKind = "unrecognized"
)

// envelope is the boundary decode of a raw bus message. Everything past
// this point is typed.
type envelope struct {
	EventType string          `json:"eventType"`
	TenantID  string          `json:"tenantId"`
	Payload   json.RawMessage `json:"payload"`
}

// WorkItemPayload carries work-item.* event data.
type WorkItemPayload struct {
	WorkItemID       string `json:"workItemId"`
	Title            string `json:"title"`
	WorkItemType     string `json:"workItemType"`
	Priority         string `json:"priority"`
	AssigneeID       string `json:"assigneeId"`
	AssigneeName     string `json:"assigneeName"`
	URL              string `json:"url"`
	OrganizationName string `json:"organizationName"`
}

// ApprovalPayload carries workflow.approval-requested data.
type ApprovalPayload struct {
	ApproverID    string `json:"approverId"`
	ApproverName  string `json:"approverName"`
	RequesterName string `json:"requesterName"`
	WorkItemTitle string `json:"workItemTitle"`
	URL           string `json:"url"`
}

// EscalationPayload carries workflow.escalation-triggered data. The
// escalation target is a different party than the original assignee.
type EscalationPayload struct {
	EscalateToID  string `json:"escalateToId"`
	WorkItemTitle string `json:"workItemTitle"`
	Reason        string `json:"reason"`
	URL           string `json:"url"`
}

// SLABreachPayload carries workflow.sla-breach data.
type SLABreachPayload struct {
	NotifyUserID   string `json:"notifyUserId"`
	WorkItemTitle  string `json:"workItemTitle"`
	SLAName        string `json:"slaName"`
	BreachDuration string `json:"breachDuration"`
	URL            string `json:"url"`
}

// DigestPayload carries workflow.digest-due data.
type DigestPayload struct {
	UserID           string `json:"userId"`
	RecipientName    string `json:"recipientName"`
	Period           string `json:"period"`
	Summary          string `json:"summary"`
	OrganizationName string `json:"organizationName"`
}

// InboundEvent is the tagged union over the known event types. Exactly one
// payload field is set for a recognized kind.
type InboundEvent struct {
	Kind      EventKind
	EventType string
	TenantID  string

	WorkItem   *WorkItemPayload
	Approval   *ApprovalPayload
	Escalation *EscalationPayload
	SLABreach  *SLABreachPayload
	Digest     *DigestPayload
}

// Parse decodes a raw bus message into the tagged union. Unknown event
// types decode to the unrecognized variant without error; malformed JSON is
// an error.
func Parse(routingKey string, body []byte) (*InboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	eventType := env.EventType
	if eventType == "" {
		eventType = routingKey
	}

	event := &InboundEvent{EventType: eventType, TenantID: env.TenantID}

	decode := func(dst interface{}) error {
		if len(env.Payload) == 0 {
			return fmt.Errorf("event %s has no payload", eventType)
		}
		if err := json.Unmarshal(env.Payload, dst); err != nil {
			return fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return nil
	}

	switch eventType {
	case string(KindWorkItemAssigned):
		event.Kind = KindWorkItemAssigned
		event.WorkItem = &WorkItemPayload{}
		return event, decode(event.WorkItem)
	case string(KindWorkItemCreated):
		event.Kind = KindWorkItemCreated
		event.WorkItem = &WorkItemPayload{}
		return event, decode(event.WorkItem)
	case string(KindWorkItemCompleted):
		event.Kind = KindWorkItemCompleted
		event.WorkItem = &WorkItemPayload{}
		return event, decode(event.WorkItem)
	case string(KindApprovalRequested):
		event.Kind = KindApprovalRequested
		event.Approval = &ApprovalPayload{}
		return event, decode(event.Approval)
	case string(KindEscalationTriggered):
		event.Kind = KindEscalationTriggered
		event.Escalation = &EscalationPayload{}
		return event, decode(event.Escalation)
	case string(KindSLABreach):
		event.Kind = KindSLABreach
		event.SLABreach = &SLABreachPayload{}
		return event, decode(event.SLABreach)
	case string(KindDigestDue):
		event.Kind = KindDigestDue
		event.Digest = &DigestPayload{}
		return event, decode(event.Digest)
	default:
		event.Kind = KindUnrecognized
		return event, nil
	}
}

// ToRequest maps a recognized event onto a notification request via
// deterministic field mapping. Unrecognized events map to nil.
func (e *InboundEvent) ToRequest() *notification.Request {
	switch e.Kind {
	case KindWorkItemAssigned:
		return &notification.Request{
			TenantID:    e.TenantID,
			RecipientID: e.WorkItem.AssigneeID,
			Type:        notification.TypeWorkItemAssigned,
			Channel:     notification.ChannelEmail,
			Priority:    mapPriority(e.WorkItem.Priority),
			TemplateID:  "work_item_assigned",
			Data: map[string]interface{}{
				"assigneeName":     e.WorkItem.AssigneeName,
				"workItemTitle":    e.WorkItem.Title,
				"workItemType":     e.WorkItem.WorkItemType,
				"priority":         e.WorkItem.Priority,
				"workItemUrl":      e.WorkItem.URL,
				"organizationName": e.WorkItem.OrganizationName,
			},
		}
	case KindWorkItemCreated:
		return &notification.Request{
			TenantID:    e.TenantID,
			RecipientID: e.WorkItem.AssigneeID,
			Type:        notification.TypeWorkItemCreated,
			Channel:     notification.ChannelEmail,
			Priority:    mapPriority(e.WorkItem.Priority),
			TemplateID:  "work_item_created",
			Data: map[string]interface{}{
				"workItemTitle":    e.WorkItem.Title,
				"workItemType":     e.WorkItem.WorkItemType,
				"workItemUrl":      e.WorkItem.URL,
				"organizationName": e.WorkItem.OrganizationName,
			},
		}
	case KindWorkItemCompleted:
		return &notification.Request{
			TenantID:    e.TenantID,
			RecipientID: e.WorkItem.AssigneeID,
			Type:        notification.TypeWorkItemCompleted,
			Channel:     notification.ChannelEmail,
			Priority:    notification.PriorityLow,
			TemplateID:  "work_item_completed",
			Data: map[string]interface{}{
				"workItemTitle":    e.WorkItem.Title,
				"workItemType":     e.WorkItem.WorkItemType,
				"workItemUrl":      e.WorkItem.URL,
				"organizationName": e.WorkItem.OrganizationName,
			},
		}
	case KindApprovalRequested:
		return &notification.Request{
			TenantID:    e.TenantID,
			RecipientID: e.Approval.ApproverID,
			Type:        notification.TypeApprovalRequested,
			Channel:     notification.ChannelEmail,
			Priority:    notification.PriorityHigh,
			TemplateID:  "approval_requested",
			Data: map[string]interface{}{
				"approverName":  e.Approval.ApproverName,
				"requesterName": e.Approval.RequesterName,
				"workItemTitle": e.Approval.WorkItemTitle,
				"workItemUrl":   e.Approval.URL,
			},
		}
	case KindEscalationTriggered:
		return &notification.Request{
			TenantID:    e.TenantID,
			RecipientID: e.Escalation.EscalateToID,
			Type:        notification.TypeEscalationTriggered,
			Channel:     notification.ChannelEmail,
			Priority:    notification.PriorityCritical,
			TemplateID:  "escalation_triggered",
			Data: map[string]interface{}{
				"workItemTitle":    e.Escalation.WorkItemTitle,
				"escalationReason": e.Escalation.Reason,
				"workItemUrl":      e.Escalation.URL,
			},
		}
	case KindSLABreach:
		return &notification.Request{
			TenantID:    e.TenantID,
			RecipientID: e.SLABreach.NotifyUserID,
			Type:        notification.TypeSLABreach,
			Channel:     notification.ChannelEmail,
			Priority:    notification.PriorityCritical,
			TemplateID:  "sla_breach",
			Data: map[string]interface{}{
				"workItemTitle":  e.SLABreach.WorkItemTitle,
				"slaName":        e.SLABreach.SLAName,
				"breachDuration": e.SLABreach.BreachDuration,
				"workItemUrl":    e.SLABreach.URL,
			},
		}
	case KindDigestDue:
		return &notification.Request{
			TenantID:    e.TenantID,
			RecipientID: e.Digest.UserID,
			Type:        notification.TypeDigest,
			Channel:     notification.ChannelEmail,
			Priority:    notification.PriorityLow,
			TemplateID:  "digest",
			Data: map[string]interface{}{
				"recipientName":    e.Digest.RecipientName,
				"digestPeriod":     e.Digest.Period,
				"summary":          e.Digest.Summary,
				"organizationName": e.Digest.OrganizationName,
			},
		}
	default:
		return nil
	}
}

func mapPriority(p string) notification.Priority {
	switch p {
	case "critical":
		return notification.PriorityCritical
	case "high":
		return notification.PriorityHigh
	case "low":
		return notification.PriorityLow
	default:
		return notification.PriorityMedium
	}
}
