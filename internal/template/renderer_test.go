package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/common/validation"
)

func workItemData() map[string]interface{} {
	return map[string]interface{}{
		"assigneeName":     "Dana",
		"workItemTitle":    "Q3 budget review",
		"workItemType":     "task",
		"priority":         "high",
		"workItemUrl":      "https://app.example.com/work/42",
		"organizationName": "Acme",
	}
}

func TestCompileWorkItemAssigned(t *testing.T) {
	r := NewRenderer()

	rendered, err := r.Compile("work_item_assigned", workItemData())
	require.NoError(t, err)

	assert.Equal(t, "task assigned: Q3 budget review", rendered.Subject)
	assert.Contains(t, rendered.TextBody, "Hi Dana,")
	assert.Contains(t, rendered.TextBody, "https://app.example.com/work/42")
	assert.Contains(t, rendered.HTMLBody, "<!DOCTYPE html>")
	assert.Contains(t, rendered.HTMLBody, "Q3 budget review")
	assert.NotContains(t, rendered.TextBody, "{{")
	assert.NotContains(t, rendered.HTMLBody, "{{")
}

func TestCompileUnknownTemplate(t *testing.T) {
	r := NewRenderer()

	_, err := r.Compile("no_such_template", nil)
	require.Error(t, err)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeTemplateNotFound, stdErr.Code)
}

func TestCompileMissingRequiredVariable(t *testing.T) {
	r := NewRenderer()

	data := workItemData()
	delete(data, "workItemTitle")

	_, err := r.Compile("work_item_assigned", data)
	require.Error(t, err)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeTemplateValidationFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "workItemTitle")
}

func TestCompileEscapesHTMLValues(t *testing.T) {
	r := NewRenderer()

	data := workItemData()
	data["workItemTitle"] = `<script>alert("x")</script>`

	rendered, err := r.Compile("work_item_assigned", data)
	require.NoError(t, err)

	assert.NotContains(t, rendered.HTMLBody, "<script>")
	// The plain-text part keeps the raw value.
	assert.Contains(t, rendered.TextBody, "<script>")
}

func TestCompileStripsOptionalPlaceholders(t *testing.T) {
	r := NewRenderer()
	r.Register(Definition{
		ID:      "custom",
		Subject: "Hello {{name}}",
		Body:    "Greetings {{name}}, note: {{optionalNote}}",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"name":         {Type: "string"},
				"optionalNote": {Type: "string"},
			},
			Required:             []string{"name"},
			AdditionalProperties: true,
		},
	})

	rendered, err := r.Compile("custom", map[string]interface{}{"name": "Sam"})
	require.NoError(t, err)

	assert.Equal(t, "Hello Sam", rendered.Subject)
	assert.False(t, strings.Contains(rendered.TextBody, "{{"))
	assert.Contains(t, rendered.TextBody, "Greetings Sam")
}

func TestCompileFormatsNonStringValues(t *testing.T) {
	r := NewRenderer()
	r.Register(Definition{
		ID:      "counts",
		Subject: "{{count}} items",
		Body:    "You have {{count}} items",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"count": {Type: "number"},
			},
			Required:             []string{"count"},
			AdditionalProperties: true,
		},
	})

	rendered, err := r.Compile("counts", map[string]interface{}{"count": 3})
	require.NoError(t, err)
	assert.Equal(t, "3 items", rendered.Subject)
}

func TestBuiltinCatalogCoversNotificationTypes(t *testing.T) {
	r := NewRenderer()
	for _, id := range []string{
		"work_item_assigned", "work_item_created", "work_item_completed",
		"approval_requested", "escalation_triggered", "sla_breach", "digest",
	} {
		assert.True(t, r.Has(id), "missing builtin template %s", id)
	}
}
