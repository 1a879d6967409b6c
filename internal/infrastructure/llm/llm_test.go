package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/ports"
)

func TestOpenAIClientRequestsJSONMode(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var payload chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "gpt-4o-mini", payload.Model)
		if assert.NotNil(t, payload.ResponseFormat) {
			assert.Equal(t, "json_object", payload.ResponseFormat.Type)
		}
		if assert.Len(t, payload.Messages, 1) {
			assert.Equal(t, "pick some", payload.Messages[0].Content)
		}

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"relevant_articles\":[1]}"}}],"usage":{"prompt_tokens":3,"completion_tokens":5}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "gpt-4o-mini", "sk-test", nil)
	out, err := client.Complete(context.Background(), "pick some", ports.CompletionOptions{JSON: true})

	require.NoError(t, err)
	assert.JSONEq(t, `{"relevant_articles":[1]}`, out)
}

func TestOpenAIClientSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "gpt-4o-mini", "sk-test", nil)
	_, err := client.Complete(context.Background(), "x", ports.CompletionOptions{})
	require.ErrorContains(t, err, "slow down")

	_, err = NewOpenAIClient(server.URL, "gpt-4o-mini", "", nil).Complete(context.Background(), "x", ports.CompletionOptions{})
	require.ErrorContains(t, err, "misconfigured")
}

func TestAnthropicClientPrefillsJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)

		var payload struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if assert.Len(t, payload.Messages, 2) {
			assert.Equal(t, "assistant", payload.Messages[1].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"\"reasonings\":[],\"relevant_articles\":[]}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":6}}`))
	}))
	defer server.Close()

	client := NewAnthropicClient("key", "claude-3-5-haiku-latest", server.URL, nil)
	out, err := client.Complete(context.Background(), "filter", ports.CompletionOptions{JSON: true})

	require.NoError(t, err)
	assert.JSONEq(t, `{"reasonings":[],"relevant_articles":[]}`, out)
}

func TestLookupPricingPrefersLongestPrefix(t *testing.T) {
	t.Parallel()

	mini, ok := LookupPricing("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.True(t, mini.PromptPerToken.Equal(decimal.RequireFromString("0.00000015")))
	assert.Equal(t, 128_000, mini.ContextSize)

	full, ok := LookupPricing("GPT-4o")
	require.True(t, ok)
	assert.True(t, full.CompletionPerToken.Equal(decimal.RequireFromString("0.00001")))

	sonnet, ok := LookupPricing("claude-sonnet-4-5")
	require.True(t, ok)
	assert.True(t, sonnet.PromptPerToken.Equal(decimal.RequireFromString("0.000003")))

	_, ok = LookupPricing("mystery-model")
	assert.False(t, ok)
}

func TestPricingPerMillion(t *testing.T) {
	t.Parallel()

	p := PricingPerMillion(3, 15, 200_000)
	assert.True(t, p.PromptPerToken.Equal(decimal.RequireFromString("0.000003")))
	assert.True(t, p.CompletionPerToken.Equal(decimal.RequireFromString("0.000015")))
	assert.Equal(t, 200_000, p.ContextSize)
}

func TestApproxCounter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ApproxCounter{}.Count(""))
	assert.Equal(t, 1, ApproxCounter{}.Count("abc"))
	assert.Equal(t, 2, ApproxCounter{}.Count("abcde"))
}
