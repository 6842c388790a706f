package core

import (
	"regexp"
	"strconv"

	"certsentry/internal/types"
)

// placeholderPattern matches {{key}} with optional inner whitespace.
// Keys are restricted to word characters so literal braces in template
// prose pass through untouched.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// RenderTemplate substitutes {{placeholder}} occurrences in tpl with values
// from data. Unknown placeholders resolve to the empty string by design:
// alert models are edited independently of template content, so a reference
// to a field that does not exist (yet) must not fail the dispatch.
func RenderTemplate(tpl string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return data[key]
	})
}

// TemplateData builds the placeholder map for a certificate notification.
// These are the documented template variables: name, expires_at, days_left.
func TemplateData(cert *types.Certificate, daysLeft int) map[string]string {
	return map[string]string{
		"name":       cert.Name,
		"expires_at": cert.ExpiresAt,
		"days_left":  strconv.Itoa(daysLeft),
	}
}

// RenderMessage renders the alert model's subject and body templates for the
// certificate and attaches the owner email recipient set.
func RenderMessage(cert *types.Certificate, model *types.AlertModel, daysLeft int) *types.Message {
	data := TemplateData(cert, daysLeft)
	return &types.Message{
		Subject:    RenderTemplate(model.TemplateSubject, data),
		Body:       RenderTemplate(model.TemplateBody, data),
		Recipients: cert.OwnerEmailList(),
	}
}
