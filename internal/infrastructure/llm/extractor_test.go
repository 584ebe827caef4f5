package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"job-pipeline/internal/config"
	"job-pipeline/internal/domain/job"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(b)
}

func newTestExtractor(t *testing.T, baseURL string) *OpenAIExtractor {
	t.Helper()
	e, err := NewOpenAIExtractor(config.LLMConfig{APIKey: "test-key", BaseURL: baseURL, Model: "gpt-4o-mini"}, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return e
}

func TestExtractJSON_SendsSchemaAndReturnsContent(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("```json\n{\"location\":\"Costa Rica\"}\n```")))
	}))
	defer srv.Close()

	schema, err := SchemaFor[job.MetadataUpdate]()
	require.NoError(t, err)

	out, err := newTestExtractor(t, srv.URL+"/").ExtractJSON(context.Background(), Request{
		Name:          "job_metadata",
		SystemMessage: "extract",
		Prompt:        "posting",
		Schema:        schema,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"location":"Costa Rica"}`, string(out))

	format := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "job_metadata", js["name"])
	props := js["schema"].(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, props, "work_mode")
	assert.Len(t, body["messages"], 2)
}

func TestExtractJSON_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	schema, err := SchemaFor[job.SkillsUpdate]()
	require.NoError(t, err)
	_, err = newTestExtractor(t, srv.URL).ExtractJSON(context.Background(), Request{Name: "skills", Prompt: "p", Schema: schema})
	require.Error(t, err)
	assert.True(t, IsTemporary(err))

	_, err = newTestExtractor(t, srv.URL).ExtractJSON(context.Background(), Request{Name: "skills", Prompt: "p"})
	assert.Error(t, err)
}

func TestExtractJSON_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("   ")))
	}))
	defer srv.Close()

	schema, err := SchemaFor[job.TechnologyUpdate]()
	require.NoError(t, err)
	_, err = newTestExtractor(t, srv.URL).ExtractJSON(context.Background(), Request{Name: "tech", Prompt: "p", Schema: schema})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestNewOpenAIExtractor_RequiresKey(t *testing.T) {
	_, err := NewOpenAIExtractor(config.LLMConfig{}, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1} "))
	assert.Equal(t, `[]`, stripFences("```\n[]\n```"))
}

func TestIsTemporary(t *testing.T) {
	assert.False(t, IsTemporary(errors.New("boom")))
	assert.True(t, IsTemporary(context.DeadlineExceeded))
}
