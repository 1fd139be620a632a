package template

import "github.com/getailigned/notification-service/internal/common/validation"

// Definition is one catalog entry: subject/body sources plus the schema of
// variables the template expects. Rendering fails when a required variable
// is absent from the request data.
type Definition struct {
	ID      string
	Subject string
	Body    string
	Schema  validation.JSONSchema
}

func strProp(desc string) validation.Property {
	return validation.Property{Type: "string", Description: desc}
}

// builtinCatalog holds the templates shipped with the service, keyed by
// template id. Ids match the notification types they serve.
var builtinCatalog = map[string]Definition{
	"work_item_assigned": {
		ID:      "work_item_assigned",
		Subject: "{{workItemType}} assigned: {{workItemTitle}}",
		Body: "Hi {{assigneeName}},\n\nYou have been assigned the {{workItemType}} " +
			"\"{{workItemTitle}}\" ({{priority}} priority) at {{organizationName}}.\n\n" +
			"View it here: {{workItemUrl}}",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"assigneeName":     strProp("display name of the assignee"),
				"workItemTitle":    strProp("title of the work item"),
				"workItemType":     strProp("kind of work item"),
				"priority":         strProp("work item priority"),
				"workItemUrl":      strProp("deep link to the work item"),
				"organizationName": strProp("tenant display name"),
			},
			Required:             []string{"assigneeName", "workItemTitle", "workItemType", "priority", "workItemUrl", "organizationName"},
			AdditionalProperties: true,
		},
	},
	"work_item_created": {
		ID:      "work_item_created",
		Subject: "New {{workItemType}}: {{workItemTitle}}",
		Body: "A new {{workItemType}} \"{{workItemTitle}}\" was created at " +
			"{{organizationName}}.\n\nView it here: {{workItemUrl}}",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"workItemTitle":    strProp("title of the work item"),
				"workItemType":     strProp("kind of work item"),
				"workItemUrl":      strProp("deep link to the work item"),
				"organizationName": strProp("tenant display name"),
			},
			Required:             []string{"workItemTitle", "workItemType", "workItemUrl", "organizationName"},
			AdditionalProperties: true,
		},
	},
	"work_item_completed": {
		ID:      "work_item_completed",
		Subject: "Completed: {{workItemTitle}}",
		Body: "The {{workItemType}} \"{{workItemTitle}}\" has been completed" +
			" at {{organizationName}}.\n\nView it here: {{workItemUrl}}",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"workItemTitle":    strProp("title of the work item"),
				"workItemType":     strProp("kind of work item"),
				"workItemUrl":      strProp("deep link to the work item"),
				"organizationName": strProp("tenant display name"),
			},
			Required:             []string{"workItemTitle", "workItemType", "workItemUrl", "organizationName"},
			AdditionalProperties: true,
		},
	},
	"approval_requested": {
		ID:      "approval_requested",
		Subject: "Approval requested: {{workItemTitle}}",
		Body: "Hi {{approverName}},\n\n{{requesterName}} has requested your approval " +
			"for \"{{workItemTitle}}\".\n\nReview it here: {{workItemUrl}}",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"approverName":  strProp("display name of the approver"),
				"requesterName": strProp("display name of the requester"),
				"workItemTitle": strProp("title of the work item"),
				"workItemUrl":   strProp("deep link to the approval"),
			},
			Required:             []string{"approverName", "requesterName", "workItemTitle", "workItemUrl"},
			AdditionalProperties: true,
		},
	},
	"escalation_triggered": {
		ID:      "escalation_triggered",
		Subject: "Escalation: {{workItemTitle}}",
		Body: "The work item \"{{workItemTitle}}\" has been escalated to you: " +
			"{{escalationReason}}.\n\nView it here: {{workItemUrl}}",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"workItemTitle":    strProp("title of the work item"),
				"escalationReason": strProp("why the escalation fired"),
				"workItemUrl":      strProp("deep link to the work item"),
			},
			Required:             []string{"workItemTitle", "escalationReason", "workItemUrl"},
			AdditionalProperties: true,
		},
	},
	"sla_breach": {
		ID:      "sla_breach",
		Subject: "SLA breach: {{workItemTitle}}",
		Body: "The work item \"{{workItemTitle}}\" breached its {{slaName}} SLA " +
			"({{breachDuration}} overdue).\n\nView it here: {{workItemUrl}}",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"workItemTitle":  strProp("title of the work item"),
				"slaName":        strProp("name of the breached SLA"),
				"breachDuration": strProp("how long past the deadline"),
				"workItemUrl":    strProp("deep link to the work item"),
			},
			Required:             []string{"workItemTitle", "slaName", "breachDuration", "workItemUrl"},
			AdditionalProperties: true,
		},
	},
	"digest": {
		ID:      "digest",
		Subject: "Your {{digestPeriod}} digest from {{organizationName}}",
		Body: "Hi {{recipientName}},\n\nHere is your {{digestPeriod}} summary: " +
			"{{summary}}",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"recipientName":    strProp("display name of the recipient"),
				"digestPeriod":     strProp("daily or weekly"),
				"summary":          strProp("pre-aggregated digest text"),
				"organizationName": strProp("tenant display name"),
			},
			Required:             []string{"recipientName", "digestPeriod", "summary", "organizationName"},
			AdditionalProperties: true,
		},
	},
}
