package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chanops/contentflow/article"
	"github.com/chanops/contentflow/graph"
	"github.com/chanops/contentflow/llm"
)

// ScoreThreshold is the quality score at which a draft no longer needs
// optimization. A score of exactly 70 passes.
const ScoreThreshold = 70.0

// ErrMalformedReview marks a review reply that was not valid JSON. The
// run does not fail on it: the review is recorded with score 0 so
// routing treats the draft as lowest-quality, and the parse failure is
// kept in ReviewResults.ParseError and the state warnings.
var ErrMalformedReview = errors.New("malformed review output")

// Nodes bundles the step implementations shared by all three workflow
// graphs. Collaborators are injected so nodes stay unit-testable with
// stub gateways and publishers.
type Nodes struct {
	Gateway   llm.Gateway
	Publisher article.Publisher
}

// Generate produces a draft from the input content via the configured
// LLM endpoint. Gateway errors propagate and fail the run.
func (n *Nodes) Generate(ctx context.Context, s State) graph.NodeResult[State] {
	prompt := buildGeneratePrompt(s)

	result, err := n.Gateway.Chat(ctx, s.LLMEndpoint, prompt, 0.7)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("generate: %w", err)}
	}

	return graph.NodeResult[State]{Delta: State{
		Draft:       result.Content,
		CurrentStep: "generation_completed",
		Metadata: map[string]interface{}{
			"generation_time":  result.ElapsedTime,
			"generation_model": s.LLMEndpoint,
		},
	}}
}

// Review scores the draft with the review model and derives the
// needs-optimization routing flag. An empty draft is recorded as a
// local failure without calling the gateway.
func (n *Nodes) Review(ctx context.Context, s State) graph.NodeResult[State] {
	delta, err := n.review(ctx, s)
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}
	return graph.NodeResult[State]{Delta: delta}
}

// review is the shared scoring logic behind Review and FinalReview.
func (n *Nodes) review(ctx context.Context, s State) (State, error) {
	if s.Draft == "" {
		return State{
			CurrentStep: "review_failed",
			Errors:      []string{"review: no draft to review"},
		}, nil
	}

	endpoint := s.ReviewModel
	if endpoint == "" {
		endpoint = s.LLMEndpoint
	}

	result, err := n.Gateway.Chat(ctx, endpoint, buildReviewPrompt(s), 0.3)
	if err != nil {
		return State{}, fmt.Errorf("review: %w", err)
	}

	review, parseErr := parseReviewReply(result.Content)
	delta := State{
		ReviewResults: &review,
		QualityScore:  ptrFloat(review.Score),
		NeedsOptimize: ptrBool(review.Score < ScoreThreshold),
		CurrentStep:   "review_completed",
		Metadata: map[string]interface{}{
			"review_score": review.Score,
			"review_model": endpoint,
		},
	}
	if parseErr != nil {
		delta.Warnings = []string{fmt.Sprintf("review: %v", parseErr)}
	}
	return delta, nil
}

// Optimize rewrites the draft against the review findings. An empty
// draft is recorded as a local failure without calling the gateway.
func (n *Nodes) Optimize(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Draft == "" {
		return graph.NodeResult[State]{Delta: State{
			CurrentStep: "optimization_failed",
			Errors:      []string{"optimize: no draft to optimize"},
		}}
	}

	endpoint := s.OptimizeModel
	if endpoint == "" {
		endpoint = s.LLMEndpoint
	}

	result, err := n.Gateway.Chat(ctx, endpoint, buildOptimizePrompt(s), 0.5)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("optimize: %w", err)}
	}

	return graph.NodeResult[State]{Delta: State{
		OptimizedContent:   result.Content,
		OptimizationRounds: s.OptimizationRounds + 1,
		CurrentStep:        "optimization_completed",
		Metadata: map[string]interface{}{
			"optimization_model": endpoint,
		},
	}}
}

// FinalReview re-scores the content and decides whether it ships.
func (n *Nodes) FinalReview(ctx context.Context, s State) graph.NodeResult[State] {
	delta, err := n.review(ctx, s)
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	if delta.QualityScore != nil {
		delta.ShouldPublish = ptrBool(*delta.QualityScore >= ScoreThreshold)
	} else {
		delta.ShouldPublish = ptrBool(false)
	}
	if delta.CurrentStep == "review_completed" {
		delta.CurrentStep = "final_review_completed"
	}
	return graph.NodeResult[State]{Delta: delta}
}

// Publish creates the article from the best available content,
// preferring the optimized version over the raw draft. Missing content
// is recorded as a local failure without calling the publisher.
func (n *Nodes) Publish(ctx context.Context, s State) graph.NodeResult[State] {
	body := s.OptimizedContent
	if body == "" {
		body = s.Draft
	}
	if body == "" {
		return graph.NodeResult[State]{Delta: State{
			CurrentStep: "publish_failed",
			Errors:      []string{"publish: no content to publish"},
		}}
	}

	title := s.MetadataString("title")
	if title == "" {
		title = "Untitled Article"
	}

	created, err := n.Publisher.CreateArticle(ctx, article.Draft{
		Title:     title,
		Content:   body,
		ChannelID: s.ChannelID,
		Status:    article.StatusPublished,
		Metadata:  s.Metadata,
	})
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("publish: %w", err)}
	}

	return graph.NodeResult[State]{Delta: State{
		CurrentStep: "publish_completed",
		Metadata: map[string]interface{}{
			"article_id":   created.ID,
			"published_at": created.CreatedAt.Format(time.RFC3339),
		},
	}}
}

func buildGeneratePrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("Write a complete article based on the following brief.\n\n")
	sb.WriteString("Brief:\n")
	sb.WriteString(s.InputContent)
	sb.WriteString("\n")

	if tone, ok := s.ChannelConfig["tone"].(string); ok && tone != "" {
		sb.WriteString("\nTone: " + tone + "\n")
	}
	if audience, ok := s.ChannelConfig["audience"].(string); ok && audience != "" {
		sb.WriteString("Audience: " + audience + "\n")
	}
	if style, ok := s.ChannelConfig["style"].(string); ok && style != "" {
		sb.WriteString("Style: " + style + "\n")
	}

	sb.WriteString("\nReturn only the article text, no preamble.")
	return sb.String()
}

// buildReviewPrompt always scores the raw draft. Optimization rewrites
// land in OptimizedContent and are picked up by Publish; re-reviews in
// the retry loop re-score the draft itself.
func buildReviewPrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("You are a strict content editor. Review the article below and score it from 0 to 100.\n\n")
	sb.WriteString("Article:\n")
	sb.WriteString(s.Draft)
	sb.WriteString("\n\nRespond ONLY with a JSON object of this exact shape:\n")
	sb.WriteString(`{"score": 0, "issues": ["..."], "suggestions": ["..."]}`)
	sb.WriteString("\nNo markdown, no explanation, just the JSON object.")
	return sb.String()
}

func buildOptimizePrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("Improve the article below.\n\n")
	sb.WriteString("Article:\n")
	sb.WriteString(s.Draft)
	sb.WriteString("\n")

	if s.ReviewResults != nil {
		if len(s.ReviewResults.Issues) > 0 {
			sb.WriteString("\nIssues to fix:\n")
			for _, issue := range s.ReviewResults.Issues {
				sb.WriteString("- " + issue + "\n")
			}
		}
		if len(s.ReviewResults.Suggestions) > 0 {
			sb.WriteString("\nSuggestions:\n")
			for _, sug := range s.ReviewResults.Suggestions {
				sb.WriteString("- " + sug + "\n")
			}
		}
	}

	sb.WriteString("\nReturn only the improved article text, no preamble.")
	return sb.String()
}

// parseReviewReply decodes the model's review JSON. Markdown code
// fences are stripped first. A reply that still fails to decode yields
// a zero-score review carrying the parse failure, plus an error
// wrapping ErrMalformedReview for callers that want strict handling.
func parseReviewReply(content string) (ReviewResults, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var review ReviewResults
	if err := json.Unmarshal([]byte(cleaned), &review); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrMalformedReview, err)
		return ReviewResults{
			Score:       0,
			Issues:      []string{},
			Suggestions: []string{},
			ParseError:  err.Error(),
		}, wrapped
	}
	if review.Issues == nil {
		review.Issues = []string{}
	}
	if review.Suggestions == nil {
		review.Suggestions = []string{}
	}
	return review, nil
}
