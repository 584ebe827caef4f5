package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"job-pipeline/internal/config"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	ErrNotConfigured = errors.New("llm api key not configured")
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Request asks for one JSON document shaped by Schema.
type Request struct {
	Name          string
	SystemMessage string
	Prompt        string
	Schema        *jsonschema.Definition
}

type Extractor interface {
	ExtractJSON(ctx context.Context, req Request) ([]byte, error)
}

type OpenAIExtractor struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *log.Logger
}

// NewOpenAIExtractor works against any OpenAI compatible endpoint; BaseURL
// must include the version prefix, e.g. https://api.openai.com/v1.
func NewOpenAIExtractor(cfg config.LLMConfig, logger *log.Logger) (*OpenAIExtractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = log.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIExtractor{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

func (e *OpenAIExtractor) ExtractJSON(ctx context.Context, req Request) ([]byte, error) {
	if req.Schema == nil {
		return nil, fmt.Errorf("llm request %s: missing schema", req.Name)
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if s := strings.TrimSpace(req.SystemMessage); s != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Messages:    messages,
		Temperature: e.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Name,
				Schema: req.Schema,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm request %s: %w", req.Name, err)
	}
	e.logger.Printf("llm=%s model=%s tokens=%d duration=%s", req.Name, e.model, resp.Usage.TotalTokens, time.Since(start).Truncate(time.Millisecond))

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm request %s: %w", req.Name, ErrEmptyResponse)
	}
	content := stripFences(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("llm request %s: %w", req.Name, ErrEmptyResponse)
	}
	return []byte(content), nil
}

// SchemaFor derives the response schema from the json, description and enum
// tags of T.
func SchemaFor[T any]() (*jsonschema.Definition, error) {
	var v T
	return jsonschema.GenerateSchemaForType(v)
}

// IsTemporary reports rate limits and upstream server errors.
func IsTemporary(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Some compatible providers wrap JSON in markdown fences even in schema mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
