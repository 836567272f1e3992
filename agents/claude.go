package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/halcyonlabs/patternflow/core"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	defaultModel     = "claude-3-5-sonnet-20241022"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ClaudeAgent turns structured analytics facts into narrative text. Without
// an API key it runs in deterministic offline mode, producing a templated
// summary from the facts alone; with a key it calls the Anthropic Messages
// API. Either way the narrative is advisory text, never an input to other
// computations.
type ClaudeAgent struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     core.Logger
}

// NewClaudeAgent builds the narrative agent. An empty apiKey selects
// offline mode.
func NewClaudeAgent(apiKey string, logger core.Logger) *ClaudeAgent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ClaudeAgent{
		apiKey:     apiKey,
		baseURL:    anthropicBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (a *ClaudeAgent) Name() string { return "claude" }

func (a *ClaudeAgent) Capabilities() []core.Capability {
	return []core.Capability{{
		Name:        "narrative.summarize",
		Description: "Narrative summary of structured analytics facts",
		Tags:        []string{"narrative", "summary", "llm"},
		Handler:     a.summarize,
	}}
}

func (a *ClaudeAgent) summarize(ctx context.Context, rc *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	facts, ok := args["facts"].(map[string]interface{})
	if !ok || len(facts) == 0 {
		return nil, core.NewError(core.KindValidationFailure, "narrative.summarize",
			"facts must be a non-empty object")
	}
	style, _ := args["style"].(string)

	if a.apiKey == "" {
		return map[string]interface{}{
			"narrative": offlineNarrative(facts, rc.AsOfDate),
			"mode":      "offline",
		}, nil
	}

	narrative, model, err := a.generate(ctx, buildPrompt(facts, style, rc.AsOfDate))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"narrative": narrative,
		"mode":      "live",
		"model":     model,
	}, nil
}

func (a *ClaudeAgent) generate(ctx context.Context, prompt string) (string, string, error) {
	reqBody := anthropicRequest{
		Model:     a.model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: 1000,
		System:    "You are a portfolio analytics assistant. Summarize the supplied facts faithfully; do not invent numbers.",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", "", core.Transient(fmt.Errorf("failed to send request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", core.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.Error("Anthropic request failed", map[string]interface{}{
			"operation":   "narrative_summarize",
			"status_code": resp.StatusCode,
		})
		apiErr := fmt.Errorf("anthropic API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
		// 429 and 5xx are retryable; 4xx client errors are not.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", "", core.Transient(apiErr)
		}
		return "", "", apiErr
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}

	var content string
	for _, item := range parsed.Content {
		if item.Type == "text" {
			content += item.Text
		}
	}
	if content == "" {
		return "", "", fmt.Errorf("no text content in Anthropic response")
	}
	return content, parsed.Model, nil
}

func buildPrompt(facts map[string]interface{}, style, asOf string) string {
	data, _ := json.Marshal(facts)
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize these portfolio analytics facts as of %s.\n", asOf)
	if style != "" {
		fmt.Fprintf(&b, "Style: %s.\n", style)
	}
	b.WriteString("Facts:\n")
	b.Write(data)
	return b.String()
}

// offlineNarrative renders facts into fixed prose in sorted key order so
// the output is reproducible.
func offlineNarrative(facts map[string]interface{}, asOf string) string {
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "As of %s: ", asOf)
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s is %s", strings.ReplaceAll(k, "_", " "), renderValue(facts[k]))
	}
	b.WriteString(".")
	return b.String()
}

func renderValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", t), "0"), ".")
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ core.Agent = (*ClaudeAgent)(nil)
