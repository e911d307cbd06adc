// Package template renders email template sources with a submit context.
// Rendering fails closed: a template that does not parse or execute yields
// the unrendered source instead of an error, so a broken template degrades
// to a raw-but-delivered email rather than a lost one.
package template

import (
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Render renders a subject or plain-text source with text/template.
func Render(src string, ctx map[string]string) string {
	t, err := texttemplate.New("email").Option("missingkey=zero").Parse(src)
	if err != nil {
		return src
	}
	var buf strings.Builder
	if err := t.Execute(&buf, ctx); err != nil {
		return src
	}
	return buf.String()
}

// RenderHTML renders an HTML body source with html/template so context
// values are escaped for the HTML context they land in.
func RenderHTML(src string, ctx map[string]string) string {
	t, err := htmltemplate.New("email").Option("missingkey=zero").Parse(src)
	if err != nil {
		return src
	}
	var buf strings.Builder
	if err := t.Execute(&buf, ctx); err != nil {
		return src
	}
	return buf.String()
}
