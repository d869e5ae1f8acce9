package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/supportdesk/internal/llm"
	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/options"
)

// Triage sources reported next to a suggestion.
const (
	triageSourceLLM       = "llm"
	triageSourceHeuristic = "heuristic"
)

// newLLMClient returns a triage client when an Anthropic key is configured
// (anthropic.api_key, SUPPORTDESK_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY),
// otherwise nil.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// suggestTriage asks the LLM when a client is configured and falls back to
// keyword heuristics. source names which one answered.
func suggestTriage(ctx context.Context, client *llm.Client, issue *models.Issue, vocab options.Vocabulary) (*llm.Triage, string) {
	if client != nil {
		t, err := client.SuggestTriage(ctx, llm.TicketText{
			Summary:         issue.IssueSummary,
			Description:     issue.DetailedDescription,
			Steps:           issue.StepsToReproduce,
			ErrorsLogs:      issue.ErrorsLogs,
			Troubleshooting: issue.TroubleshootingSteps,
			PluginName:      issue.PluginName,
		}, vocab.Plugins, vocab.Categories)
		if err == nil {
			return t, triageSourceLLM
		}
		ui.Warning("LLM triage failed, using heuristics: %v", err)
	}

	text := strings.Join([]string{issue.IssueSummary, issue.DetailedDescription, issue.ErrorsLogs}, "\n")
	return &llm.Triage{
		Category: classifyIssueCategory(text, vocab.Categories),
		Plugin:   matchVocabulary(issue.PluginName, vocab.Plugins),
		Escalate: classifyEscalation(text),
	}, triageSourceHeuristic
}
