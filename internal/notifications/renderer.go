package notifications

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// smsMaxLength is the number of characters of a single SMS segment pair.
const smsMaxLength = 320

// Renderer renders messages into channel-specific bodies.
type Renderer struct {
	email *htmltemplate.Template
	text  map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := map[string]any{
		"label":         label,
		"upper":         upper,
		"formatTime":    formatTime,
		"severityEmoji": severityEmoji,
		"typeEmoji":     typeEmoji,
	}

	content, err := templatesFS.ReadFile("templates/email.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read template email: %w", err)
	}
	email, err := htmltemplate.New("email").Funcs(funcMap).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template email: %w", err)
	}

	r := &Renderer{
		email: email,
		text:  make(map[string]*template.Template),
	}

	for _, name := range []string{"chat", "sms"} {
		filename := fmt.Sprintf("templates/%s.tmpl", name)
		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.text[name] = tmpl
	}

	return r, nil
}

// Subject generates the subject line for a message.
func (r *Renderer) Subject(msg Message) string {
	var prefix string
	switch msg.Type {
	case domain.CommunicationTypeInitialAlert:
		prefix = "Crisis Alert"
	case domain.CommunicationTypeUpdate:
		prefix = "Update"
	case domain.CommunicationTypeEscalation:
		prefix = "Escalation"
	case domain.CommunicationTypeResolution:
		prefix = "Resolved"
	default:
		prefix = "Notice"
	}
	return fmt.Sprintf("[%s] %s", prefix, msg.Subject)
}

// RenderEmail renders the HTML body of an email.
func (r *Renderer) RenderEmail(msg Message) (string, error) {
	var buf bytes.Buffer
	if err := r.email.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("execute template email: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderChat renders a markdown body for chat webhooks.
func (r *Renderer) RenderChat(msg Message) (string, error) {
	return r.renderText("chat", msg)
}

// RenderSMS renders a plain text body trimmed to SMS length.
func (r *Renderer) RenderSMS(msg Message) (string, error) {
	body, err := r.renderText("sms", msg)
	if err != nil {
		return "", err
	}
	if runes := []rune(body); len(runes) > smsMaxLength {
		body = string(runes[:smsMaxLength-1]) + "…"
	}
	return body, nil
}

func (r *Renderer) renderText(name string, msg Message) (string, error) {
	tmpl, ok := r.text[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Template functions

var titleCaser = cases.Title(language.English)

// label turns an enum value like "initial_alert" into "Initial Alert".
func label(v any) string {
	return titleCaser.String(strings.ReplaceAll(fmt.Sprint(v), "_", " "))
}

func upper(v any) string {
	return strings.ToUpper(fmt.Sprint(v))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func severityEmoji(severity domain.Severity) string {
	switch severity {
	case domain.SeverityLow:
		return "🟢"
	case domain.SeverityMedium:
		return "🟡"
	case domain.SeverityHigh:
		return "🟠"
	case domain.SeverityCritical:
		return "🔴"
	default:
		return "⚪"
	}
}

func typeEmoji(t domain.CommunicationType) string {
	switch t {
	case domain.CommunicationTypeInitialAlert:
		return "🚨"
	case domain.CommunicationTypeUpdate:
		return "📋"
	case domain.CommunicationTypeEscalation:
		return "⏫"
	case domain.CommunicationTypeResolution:
		return "✅"
	default:
		return "📣"
	}
}
