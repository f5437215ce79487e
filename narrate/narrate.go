// Package narrate asks an OpenAI-compatible chat endpoint (LM Studio by
// default) for a short prose summary of each contributor's day.
package narrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/summary"
)

const (
	// DefaultBaseURL is LM Studio's local server
	DefaultBaseURL   = "http://localhost:1234/v1"
	DefaultModel     = "local-model"
	DefaultMaxTokens = 300
	DefaultTimeout   = time.Minute
)

const systemPrompt = "You are an expert software engineer. Summarize the day's commits " +
	"for one contributor. Focus on the main changes, improvements and bug fixes. " +
	"Be concise and clear: two or three sentences, no lists."

// Config configures the narrative endpoint
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Narrator writes narratives through a chat completion API
type Narrator struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// New creates a Narrator. Local servers accept any API key.
func New(cfg Config) *Narrator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(baseURL, "/")

	return &Narrator{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// Annotate fills in the narrative of every section of report. Failures are
// recorded inline and never abort the report.
func (n *Narrator) Annotate(ctx context.Context, report *summary.Report) {
	for i := range report.Sections {
		if ctx.Err() != nil {
			return
		}
		report.Sections[i].Narrative = n.Summarize(ctx, report.Date, report.Sections[i])
	}
}

// Summarize returns the narrative for one section, or an
// "[AI summary failed: ...]" note.
func (n *Narrator) Summarize(ctx context.Context, date string, section summary.Section) string {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	text, err := n.complete(ctx, Prompt(date, section))
	if err != nil {
		logger.Warn("AI summary failed",
			zap.String("contributor", section.Contributor.DisplayName),
			zap.Error(err))
		return fmt.Sprintf("[AI summary failed: %v]", err)
	}
	return text
}

func (n *Narrator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.2,
		MaxTokens:   n.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion returned an empty message")
	}
	return text, nil
}

// Prompt lists a section's commit subjects for the model. Diffs are never
// sent.
func Prompt(date string, section summary.Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commits by %s on %s:\n\n", section.Contributor.DisplayName, date)
	for _, e := range section.Entries {
		fmt.Fprintf(&b, "- [%s] %s\n", e.Repository, e.Subject)
	}
	b.WriteString("\nSummary:")
	return b.String()
}
