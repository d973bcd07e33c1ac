package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// FeedbackTimeout bounds a single persona feedback call.
	FeedbackTimeout = 30 * time.Second
	// SummarizeTimeout bounds a conversation summary call.
	SummarizeTimeout = 45 * time.Second
)

// Gateway generates persona feedback and chat summaries. Callers race
// every call against a deadline and substitute FallbackFeedback on
// expiry rather than failing the surrounding operation.
type Gateway interface {
	GenerateFeedback(ctx context.Context, text, persona string) (string, error)
	Summarize(ctx context.Context, transcript, question string) (string, error)
}

// OpenRouterGateway talks to an openai-compatible completion endpoint.
type OpenRouterGateway struct {
	llm       llms.Model
	modelName string
}

func NewOpenRouterGateway(apiKey, baseURL, model string) (*OpenRouterGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}

	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	return &OpenRouterGateway{llm: llm, modelName: model}, nil
}

func (g *OpenRouterGateway) generateWithSystem(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := g.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(0.7),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

func (g *OpenRouterGateway) GenerateFeedback(ctx context.Context, text, persona string) (string, error) {
	systemPrompt := personaPrompt(persona)

	userPrompt := fmt.Sprintf(`Please review the following message shared by a team member and provide your feedback from your persona's perspective:

---
%s
---

Provide your analysis now.`, text)

	return g.generateWithSystem(ctx, systemPrompt, userPrompt, 500)
}

func (g *OpenRouterGateway) Summarize(ctx context.Context, transcript, question string) (string, error) {
	var systemPrompt, userPrompt string
	if question != "" {
		systemPrompt = fmt.Sprintf(`You are an intelligent assistant helping users understand a team chat conversation from a workplace app called "Commit Kings".

You have the full chat transcript below. Answer the user's question based ONLY on what's in the transcript. Be concise, specific, and reference who said what when relevant.

If the answer isn't found in the transcript, say so clearly.

Chat Transcript:
---
%s
---`, transcript)
		userPrompt = question
	} else {
		systemPrompt = `You are an intelligent assistant that summarizes team chat conversations from a workplace app called "Commit Kings".

Provide a well-structured, concise summary covering:
- **Key Topics Discussed**: Main subjects and themes
- **Important Decisions**: Any decisions made or agreed upon
- **Action Items**: Tasks or follow-ups mentioned
- **Notable Contributions**: Key points made by participants
- **Unresolved Questions**: Open items that need follow-up

Keep the summary under 400 words. Use bullet points for clarity. Be factual and objective.`
		userPrompt = fmt.Sprintf("Please summarize the following team chat conversation:\n\n---\n%s\n---\n\nProvide your structured summary now.", transcript)
	}

	return g.generateWithSystem(ctx, systemPrompt, userPrompt, 1000)
}

// Disabled stands in when no API key is configured. Every call errors,
// so callers serve their fallback strings instead.
type Disabled struct{}

func (Disabled) GenerateFeedback(ctx context.Context, text, persona string) (string, error) {
	return "", fmt.Errorf("ai gateway disabled")
}

func (Disabled) Summarize(ctx context.Context, transcript, question string) (string, error) {
	return "", fmt.Errorf("ai gateway disabled")
}

// NormalizePersona canonicalizes a persona label; unknown labels fall
// back to team_lead.
func NormalizePersona(persona string) string {
	p := strings.ToLower(strings.TrimSpace(persona))
	p = strings.Join(strings.Fields(p), "_")
	if _, ok := personaPrompts[p]; !ok {
		return PersonaTeamLead
	}
	return p
}

// FallbackFeedback is the user-visible substitute when a feedback call
// fails or exceeds its deadline.
func FallbackFeedback(persona string) string {
	return fmt.Sprintf("Could not generate %s feedback at this time. Please try again.", NormalizePersona(persona))
}

// GenerateWithFallback races a feedback call against the timeout. A
// late result from the gateway is abandoned, never delivered. The
// second return reports whether the fallback was substituted.
func GenerateWithFallback(ctx context.Context, g Gateway, text, persona string, timeout time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		feedback string
		err      error
	}

	ch := make(chan result, 1)
	go func() {
		feedback, err := g.GenerateFeedback(ctx, text, persona)
		ch <- result{feedback, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return FallbackFeedback(persona), true
		}
		return r.feedback, false
	case <-ctx.Done():
		return FallbackFeedback(persona), true
	}
}
