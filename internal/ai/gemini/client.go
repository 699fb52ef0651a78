package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/overlab-kevin/clinical-trial-matcher/internal/ai"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel = "gemini-2.5-pro"
)

var sleep = time.Sleep

// modelCaller is the narrow slice of the genai client used by the Generator.
type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client to provide simple prompt-based
// interactions with retry and backoff on temporary failures.
type Generator struct {
	models modelCaller
	model  string
	retry  ai.RetryPolicy
	logger *zap.Logger
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, retry ai.RetryPolicy, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		models: client.Models,
		model:  model,
		retry:  retry.Normalized(),
		logger: logger,
	}, nil
}

// GenerateContent sends the prompt to Gemini and returns the textual response.
// Temporary failures are retried per the configured policy. Requests rejected
// by the API fail immediately.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	attempts := g.retry.MaxAttempts

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err == nil {
			output := collectText(resp)
			if output == "" {
				return "", ai.ErrEmptyResponse
			}
			return output, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		reason, temporary := classify(err)
		if !temporary {
			g.logger.Warn("gemini rejected the request", zap.Error(err))
			return "", fmt.Errorf("generate content: %w", err)
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		delay := g.retry.Delay(attempt)
		g.logger.Warn("temporary gemini failure, backing off",
			zap.String("reason", reason),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		sleep(delay)
	}

	return "", fmt.Errorf("generate content failed after %d attempts: %w", attempts, lastErr)
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// classify sorts a request failure into retryable and non-retryable buckets.
// Anything that is not a structured API error is assumed to be a transport
// hiccup worth retrying.
func classify(err error) (reason string, temporary bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return "transport error", true
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return "rate limited", true
	case apiErr.Code >= http.StatusInternalServerError:
		return "service error", true
	default:
		return "request rejected", false
	}
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
