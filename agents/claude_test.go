package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/patternflow/core"
)

func TestSummarizeOfflineDeterministic(t *testing.T) {
	agent := NewClaudeAgent("", nil)
	handler := capability(t, agent, "narrative.summarize").Handler

	args := map[string]interface{}{"facts": map[string]interface{}{
		"twr":    0.082,
		"regime": "late_cycle",
	}}
	first, err := handler(context.Background(), testRC(), args)
	require.NoError(t, err)
	second, err := handler(context.Background(), testRC(), args)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	result := first.(map[string]interface{})
	assert.Equal(t, "offline", result["mode"])
	assert.Equal(t, "As of 2025-01-15: regime is late_cycle; twr is 0.082.", result["narrative"])
}

func TestSummarizeRejectsEmptyFacts(t *testing.T) {
	agent := NewClaudeAgent("", nil)
	handler := capability(t, agent, "narrative.summarize").Handler

	_, err := handler(context.Background(), testRC(), map[string]interface{}{})
	assert.Equal(t, core.KindValidationFailure, core.KindOf(err))
}

func TestSummarizeLiveCallsMessagesAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"Portfolio returned 8.2% in a late-cycle regime."}],"model":"claude-3-5-sonnet-20241022","usage":{"input_tokens":50,"output_tokens":20}}`))
	}))
	defer server.Close()

	agent := NewClaudeAgent("test-key", nil)
	agent.baseURL = server.URL
	handler := capability(t, agent, "narrative.summarize").Handler

	raw, err := handler(context.Background(), testRC(), map[string]interface{}{
		"facts": map[string]interface{}{"twr": 0.082},
	})
	require.NoError(t, err)
	result := raw.(map[string]interface{})
	assert.Equal(t, "live", result["mode"])
	assert.Contains(t, result["narrative"], "8.2%")
}

func TestSummarizeLiveServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	agent := NewClaudeAgent("test-key", nil)
	agent.baseURL = server.URL
	handler := capability(t, agent, "narrative.summarize").Handler

	_, err := handler(context.Background(), testRC(), map[string]interface{}{
		"facts": map[string]interface{}{"twr": 0.082},
	})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err), "5xx responses must be retryable")
}

func TestSummarizeLiveClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	agent := NewClaudeAgent("test-key", nil)
	agent.baseURL = server.URL
	handler := capability(t, agent, "narrative.summarize").Handler

	_, err := handler(context.Background(), testRC(), map[string]interface{}{
		"facts": map[string]interface{}{"twr": 0.082},
	})
	require.Error(t, err)
	assert.False(t, core.IsTransient(err), "4xx responses must not retry")
}
