package prompts

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
)

// DefaultSystemPrompt is the assistant persona used when the config has none.
const DefaultSystemPrompt = `You are a travel booking assistant and customer executive. Your goal is to help customers book travel tours.
You have access to tools to:
1. Get customer context by phone number
2. Search for available tours based on destination and budget
3. Book a tour for a customer
4. List bookings for a customer by phone
5. Process a payment

Be proactive, professional, and ask for information if needed. Use the tools strategically to complete the booking process.
If you do not know the customer's name, ask for their phone number and use the customer context tool to look them up.
Always be polite and provide clear summaries of actions taken. Remember all details provided by the customer in this conversation.
Before calling any payment tool, you must obtain explicit user consent in the conversation.`

const systemTemplate = `{{ .Persona | trim }}
{{- with .Instructions }}

{{ . | trim }}
{{- end }}
{{- if .Tools }}

Available tools: {{ .Tools | sortAlpha | join ", " }}.
{{- end }}`

const hintsSystemTemplate = `You generate 2-3 short next-step suggestions for the user in a travel booking chat. Use ONLY the tours listed below. Do not invent destinations or services. Keep each suggestion under 80 characters, actionable, and relevant to the last exchange. Return ONLY a JSON array of strings, no prose. Tours available:
{{- range .Tours }}
- {{ .name | default "" }} (code {{ .code | default "" }}) to {{ .destination | default "" }}, price {{ coalesce .price .base_price | default "" }}
{{- end }}`

const hintsUserTemplate = `Previous user message:
{{ .LastUser }}

Last assistant reply:
{{ .LastAssistant }}`

const authNoteTemplate = `Authenticated user context:
{{- if .Found }} name={{ .Name }}, phone={{ .Phone }}, email={{ .Email }}.
{{- else }} email={{ .Email }}, phone={{ .Phone }}. No customer profile found yet.
{{- end }}`

var templates = template.Must(
	template.New("prompts").Funcs(sprig.TxtFuncMap()).Parse(`{{ define "system" }}` + systemTemplate + `{{ end }}` +
		`{{ define "hints_system" }}` + hintsSystemTemplate + `{{ end }}` +
		`{{ define "hints_user" }}` + hintsUserTemplate + `{{ end }}` +
		`{{ define "auth_note" }}` + authNoteTemplate + `{{ end }}`),
)

// SystemData is the input of the system prompt.
type SystemData struct {
	// Persona defaults to DefaultSystemPrompt
	Persona string
	// Instructions are appended after the persona
	Instructions string
	// Tools optionally lists the tool names in the prompt
	Tools []string
}

// HintsData is the input of the hints prompt.
type HintsData struct {
	// Tours as returned by the provider tool
	Tours         []map[string]any
	LastUser      string
	LastAssistant string
}

// AuthNote is the authenticated user context note.
type AuthNote struct {
	Found bool
	Name  string
	Phone string
	Email string
}

// Prompt is a rendered request to the model.
type Prompt []llms.Message

// String returns the transcript of the prompt.
func (p Prompt) String() string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, p)
	return buf.String()
}

// Messages returns a copy of the prompt messages.
func (p Prompt) Messages() []llms.Message {
	return llms.CloneMessages(p)
}

// SystemPrompt renders the system prompt.
func SystemPrompt(data SystemData) (string, error) {
	if data.Persona == "" {
		data.Persona = DefaultSystemPrompt
	}
	return execute("system", data)
}

// HintsPrompt renders the messages of the hints request.
func HintsPrompt(data HintsData) (Prompt, error) {
	sys, err := execute("hints_system", data)
	if err != nil {
		return nil, err
	}
	user, err := execute("hints_user", data)
	if err != nil {
		return nil, err
	}
	return Prompt{
		llms.TextMessage(llms.RoleSystem, sys),
		llms.TextMessage(llms.RoleUser, user),
	}, nil
}

// AuthNoteText renders the system note with the authenticated user.
func AuthNoteText(note AuthNote) (string, error) {
	return execute("auth_note", note)
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrapf(err, "failed to render %s prompt", name)
	}
	return buf.String(), nil
}
