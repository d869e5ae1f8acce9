package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/supportdesk/internal/models"
)

// TicketText is the free text of a support issue sent for triage.
type TicketText struct {
	Summary         string
	Description     string
	Steps           string
	ErrorsLogs      string
	Troubleshooting string
	PluginName      string
}

// Triage is the model's suggestion for an issue.
type Triage struct {
	Category  string `json:"category"`
	Plugin    string `json:"plugin"`
	Escalate  bool   `json:"escalate"`
	Summary   string `json:"summary"`
	NextSteps string `json:"next_steps"`
}

// Patch turns the suggestion into the fields that differ from issue. It only
// ever raises an escalation: a set escalation flag is never cleared and only an
// Open issue moves to Escalated.
func (t *Triage) Patch(issue *models.Issue) models.IssuePatch {
	var p models.IssuePatch
	if t.Category != "" && t.Category != issue.IssueCategory {
		category := t.Category
		p.IssueCategory = &category
	}
	if t.Escalate && !issue.EscalatedToDev {
		escalated := true
		p.EscalatedToDev = &escalated
	}
	if t.Escalate && issue.Status == models.StatusOpen {
		status := models.StatusEscalated
		p.Status = &status
	}
	return p
}

// Client wraps the Anthropic API for issue triage.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model. Extra
// request options such as option.WithBaseURL are applied after the key.
func NewClient(apiKey, model string, extra ...option.RequestOption) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, extra...)
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildTriagePrompt constructs the system and user prompts for triage.
func buildTriagePrompt(t TicketText, plugins, categories []string) (system string, user string) {
	system = `You triage support tickets for WordPress and WooCommerce plugins. Return ONLY a JSON object with these fields:
- "category": the issue category
- "plugin": the plugin the ticket is about
- "escalate": true if the ticket needs a developer (code defect, fatal error, data loss, security), false if support can resolve it (configuration, usage question, conflict with another plugin or theme)
- "summary": a one-line issue summary under 80 characters
- "next_steps": 1-3 short troubleshooting steps for the support agent

Rules:
- Pick "category" from the known categories list when one fits; otherwise propose a short new one
- Pick "plugin" from the known plugins list when the ticket mentions it; otherwise keep the plugin given in the ticket
- Stack traces, PHP fatal errors and database errors usually mean escalate
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if len(categories) > 0 {
		sb.WriteString("Known categories: ")
		sb.WriteString(strings.Join(categories, ", "))
		sb.WriteString("\n")
	}
	if len(plugins) > 0 {
		sb.WriteString("Known plugins: ")
		sb.WriteString(strings.Join(plugins, ", "))
		sb.WriteString("\n")
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	field := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			sb.WriteString(label)
			sb.WriteString(":\n")
			sb.WriteString(value)
			sb.WriteString("\n\n")
		}
	}
	field("Plugin", t.PluginName)
	field("Summary", t.Summary)
	field("Description", t.Description)
	field("Steps to reproduce", t.Steps)
	field("Errors/logs", t.ErrorsLogs)
	field("Troubleshooting so far", t.Troubleshooting)
	user = strings.TrimRight(sb.String(), "\n")
	return
}

// SuggestTriage asks the model to categorise a ticket and decide on escalation.
func (c *Client) SuggestTriage(ctx context.Context, t TicketText, plugins, categories []string) (*Triage, error) {
	systemPrompt, userPrompt := buildTriagePrompt(t, plugins, categories)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}
	return parseTriage(text)
}

// parseTriage decodes the model's reply, tolerating a markdown fence.
func parseTriage(text string) (*Triage, error) {
	text = stripFence(text)
	var t Triage
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	t.Category = strings.TrimSpace(t.Category)
	t.Plugin = strings.TrimSpace(t.Plugin)
	t.Summary = strings.TrimSpace(t.Summary)
	return &t, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
