// Package template compiles catalog templates into rendered notification
// payloads.
package template

import (
	"fmt"
	"html"
	"strings"
	"sync"

	apperrors "github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/common/validation"
	"github.com/getailigned/notification-service/internal/notification"
)

// Renderer resolves template ids against the catalog and substitutes
// variables. Safe for concurrent use.
type Renderer struct {
	mu      sync.RWMutex
	catalog map[string]Definition
}

// NewRenderer returns a renderer seeded with the built-in catalog.
func NewRenderer() *Renderer {
	catalog := make(map[string]Definition, len(builtinCatalog))
	for id, def := range builtinCatalog {
		catalog[id] = def
	}
	return &Renderer{catalog: catalog}
}

// Register adds or replaces a catalog entry.
func (r *Renderer) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog[def.ID] = def
}

// Has reports whether the catalog contains the template id.
func (r *Renderer) Has(templateID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.catalog[templateID]
	return ok
}

// Compile renders subject, HTML body and text body for the template id.
// Unknown ids and missing required variables are fatal for the request.
func (r *Renderer) Compile(templateID string, data map[string]interface{}) (*notification.RenderedTemplate, error) {
	r.mu.RLock()
	def, ok := r.catalog[templateID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewTemplateNotFoundError(templateID)
	}

	if result := validation.ValidateInput(data, def.Schema); !result.Valid {
		return nil, apperrors.NewTemplateValidationFailedError(result.Summary())
	}

	subject := substitute(def.Subject, data, false)
	textBody := substitute(def.Body, data, false)
	htmlBody := wrapHTML(subject, substitute(def.Body, data, true))

	return &notification.RenderedTemplate{
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	}, nil
}

// substitute replaces {{name}} placeholders with values from data. With
// escape set, values are HTML-escaped. Placeholders for optional variables
// that are absent render as empty strings.
func substitute(tmpl string, data map[string]interface{}, escape bool) string {
	result := tmpl
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		switch typed := v.(type) {
		case string:
			value = typed
		case nil:
		default:
			value = fmt.Sprintf("%v", typed)
		}
		if escape {
			value = html.EscapeString(value)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Remove any remaining placeholders (optional values left unset).
	for {
		start := strings.Index(result, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end < 0 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

// wrapHTML renders the plain body into the inline-styled HTML shell that
// email clients tolerate. Styles must stay inline; most clients strip
// <style> blocks.
func wrapHTML(title, body string) string {
	paragraphs := strings.Split(body, "\n\n")
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body style="margin:0;padding:0;background-color:#f4f5f7;">`)
	b.WriteString(`<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f5f7;padding:24px 0;"><tr><td align="center">`)
	b.WriteString(`<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;font-family:Helvetica,Arial,sans-serif;color:#172b4d;">`)
	b.WriteString(`<tr><td style="padding:24px 32px 8px 32px;font-size:18px;font-weight:bold;">`)
	b.WriteString(html.EscapeString(title))
	b.WriteString(`</td></tr>`)
	for _, p := range paragraphs {
		b.WriteString(`<tr><td style="padding:8px 32px;font-size:14px;line-height:20px;">`)
		b.WriteString(strings.ReplaceAll(p, "\n", "<br/>"))
		b.WriteString(`</td></tr>`)
	}
	b.WriteString(`<tr><td style="padding:16px 32px 24px 32px;font-size:12px;color:#6b778c;">You are receiving this because of your notification preferences.</td></tr>`)
	b.WriteString(`</table></td></tr></table></body></html>`)
	return b.String()
}
