package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getailigned/notification-service/internal/notification"
)

func marshalEvent(t *testing.T, eventType, tenantID string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"eventType": eventType,
		"tenantId":  tenantID,
		"payload":   payload,
	})
	require.NoError(t, err)
	return raw
}

func TestParseWorkItemAssigned(t *testing.T) {
	body := marshalEvent(t, "work-item.assigned", "tenant-1", WorkItemPayload{
		WorkItemID:       "wi-42",
		Title:            "Q3 budget review",
		WorkItemType:     "task",
		Priority:         "high",
		AssigneeID:       "user-1",
		AssigneeName:     "Dana",
		URL:              "https://app.example.com/work/42",
		OrganizationName: "Acme",
	})

	event, err := Parse("work-item.assigned", body)
	require.NoError(t, err)
	assert.Equal(t, KindWorkItemAssigned, event.Kind)
	assert.Equal(t, "tenant-1", event.TenantID)
	require.NotNil(t, event.WorkItem)
	assert.Equal(t, "Dana", event.WorkItem.AssigneeName)
}

func TestParseFallsBackToRoutingKey(t *testing.T) {
	body := marshalEvent(t, "", "tenant-1", WorkItemPayload{AssigneeID: "user-1"})

	event, err := Parse("work-item.created", body)
	require.NoError(t, err)
	assert.Equal(t, KindWorkItemCreated, event.Kind)
}

func TestParseUnrecognizedEventType(t *testing.T) {
	body := marshalEvent(t, "workflow.reindex-started", "tenant-1", map[string]string{})

	event, err := Parse("workflow.reindex-started", body)
	require.NoError(t, err)
	assert.Equal(t, KindUnrecognized, event.Kind)
	assert.Nil(t, event.ToRequest())
}

func TestParseMalformedBody(t *testing.T) {
	_, err := Parse("work-item.assigned", []byte("{nope"))
	assert.Error(t, err)
}

func TestParseMissingPayload(t *testing.T) {
	raw, err := json.Marshal(map[string]interface{}{
		"eventType": "workflow.sla-breach",
		"tenantId":  "tenant-1",
	})
	require.NoError(t, err)

	_, err = Parse("workflow.sla-breach", raw)
	assert.Error(t, err)
}

func TestToRequestMapping(t *testing.T) {
	tests := []struct {
		name          string
		eventType     string
		payload       interface{}
		wantType      notification.Type
		wantPriority  notification.Priority
		wantRecipient string
		wantTemplate  string
	}{
		{
			name:      "assigned keeps work item priority",
			eventType: "work-item.assigned",
			payload: WorkItemPayload{
				AssigneeID: "user-1", Priority: "critical",
			},
			wantType:      notification.TypeWorkItemAssigned,
			wantPriority:  notification.PriorityCritical,
			wantRecipient: "user-1",
			wantTemplate:  "work_item_assigned",
		},
		{
			name:      "unknown work item priority maps to medium",
			eventType: "work-item.created",
			payload: WorkItemPayload{
				AssigneeID: "user-1", Priority: "urgent-ish",
			},
			wantType:      notification.TypeWorkItemCreated,
			wantPriority:  notification.PriorityMedium,
			wantRecipient: "user-1",
			wantTemplate:  "work_item_created",
		},
		{
			name:          "completed is always low",
			eventType:     "work-item.completed",
			payload:       WorkItemPayload{AssigneeID: "user-1", Priority: "critical"},
			wantType:      notification.TypeWorkItemCompleted,
			wantPriority:  notification.PriorityLow,
			wantRecipient: "user-1",
			wantTemplate:  "work_item_completed",
		},
		{
			name:          "approval goes to the approver at high",
			eventType:     "workflow.approval-requested",
			payload:       ApprovalPayload{ApproverID: "approver-1"},
			wantType:      notification.TypeApprovalRequested,
			wantPriority:  notification.PriorityHigh,
			wantRecipient: "approver-1",
			wantTemplate:  "approval_requested",
		},
		{
			name:          "escalation goes to the escalation target at critical",
			eventType:     "workflow.escalation-triggered",
			payload:       EscalationPayload{EscalateToID: "manager-1"},
			wantType:      notification.TypeEscalationTriggered,
			wantPriority:  notification.PriorityCritical,
			wantRecipient: "manager-1",
			wantTemplate:  "escalation_triggered",
		},
		{
			name:          "sla breach is critical",
			eventType:     "workflow.sla-breach",
			payload:       SLABreachPayload{NotifyUserID: "user-1"},
			wantType:      notification.TypeSLABreach,
			wantPriority:  notification.PriorityCritical,
			wantRecipient: "user-1",
			wantTemplate:  "sla_breach",
		},
		{
			name:          "digest is low",
			eventType:     "workflow.digest-due",
			payload:       DigestPayload{UserID: "user-1"},
			wantType:      notification.TypeDigest,
			wantPriority:  notification.PriorityLow,
			wantRecipient: "user-1",
			wantTemplate:  "digest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Parse(tt.eventType, marshalEvent(t, tt.eventType, "tenant-1", tt.payload))
			require.NoError(t, err)

			req := event.ToRequest()
			require.NotNil(t, req)
			assert.Equal(t, "tenant-1", req.TenantID)
			assert.Equal(t, tt.wantRecipient, req.RecipientID)
			assert.Equal(t, tt.wantType, req.Type)
			assert.Equal(t, tt.wantPriority, req.Priority)
			assert.Equal(t, tt.wantTemplate, req.TemplateID)
			assert.Equal(t, notification.ChannelEmail, req.Channel)
		})
	}
}

func TestToRequestCarriesTemplateData(t *testing.T) {
	body := marshalEvent(t, "work-item.assigned", "tenant-1", WorkItemPayload{
		AssigneeID:       "user-1",
		AssigneeName:     "Dana",
		Title:            "Q3 budget review",
		WorkItemType:     "task",
		Priority:         "high",
		URL:              "https://app.example.com/work/42",
		OrganizationName: "Acme",
	})

	event, err := Parse("work-item.assigned", body)
	require.NoError(t, err)

	req := event.ToRequest()
	assert.Equal(t, "Dana", req.Data["assigneeName"])
	assert.Equal(t, "Q3 budget review", req.Data["workItemTitle"])
	assert.Equal(t, "task", req.Data["workItemType"])
	assert.Equal(t, "high", req.Data["priority"])
	assert.Equal(t, "https://app.example.com/work/42", req.Data["workItemUrl"])
	assert.Equal(t, "Acme", req.Data["organizationName"])
}
