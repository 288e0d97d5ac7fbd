package oracle

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// llmServer returns an httptest server that replies to every chat completion
// with the given content and citations, recording the last user prompt.
func llmServer(t *testing.T, content string, citations []string, lastPrompt *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if lastPrompt != nil && len(req.Messages) > 0 {
			*lastPrompt = req.Messages[len(req.Messages)-1].Content
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"citations": citations,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestAdapter(t *testing.T, llmURL string, price *PriceClient) *Adapter {
	t.Helper()
	llm := NewLLMClient(LLMConfig{BaseURL: llmURL, APIKey: "test", Model: "sonar-pro", Timeout: 5 * time.Second})
	a := NewAdapter(llm, price, discardLogger())
	a.now = func() time.Time { return time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC) }
	return a
}

func TestResolveDecidedOutcome(t *testing.T) {
	content := "```json\n{\"outcome\": \"yes\", \"confidence\": 92, \"reason\": \"event occurred\", \"evidence\": \"press release\"}\n```"
	srv := llmServer(t, content, []string{"https://example.org/a"}, nil)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, nil)
	res := a.Resolve(context.Background(), "Will X happen by June?", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 7)

	require.False(t, res.APIError)
	require.NotNil(t, res.Outcome)
	require.Equal(t, domain.OutcomeYes, *res.Outcome)
	require.Equal(t, uint8(92), res.Confidence)
	require.Equal(t, "event occurred", res.Reason)
	require.Contains(t, res.Sources, "https://example.org/a")
	require.True(t, res.Decided())
}

func TestResolveUndecidedIsNotAnError(t *testing.T) {
	content := `{"outcome": null, "confidence": 40, "reason": "event has not concluded"}`
	srv := llmServer(t, content, nil, nil)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, nil)
	res := a.Resolve(context.Background(), "Will Y happen?", time.Now(), 1)

	require.False(t, res.APIError)
	require.Nil(t, res.Outcome)
	require.False(t, res.Decided())
	require.Equal(t, uint8(40), res.Confidence)
}

func TestResolveTransportFailureIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, nil)
	res := a.Resolve(context.Background(), "Will Z happen?", time.Now(), 2)

	require.True(t, res.APIError)
	require.Nil(t, res.Outcome)
	require.Equal(t, uint8(0), res.Confidence)
}

func TestResolveMalformedVerdictIsSoft(t *testing.T) {
	srv := llmServer(t, "I cannot answer in the requested format.", nil, nil)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, nil)
	res := a.Resolve(context.Background(), "Will Z happen?", time.Now(), 2)

	require.True(t, res.APIError)
	require.Nil(t, res.Outcome)
}

func TestResolvePriceEnrichment(t *testing.T) {
	var prompt string
	srv := llmServer(t, `{"outcome": "no", "confidence": 80, "reason": "price below target"}`, nil, &prompt)
	defer srv.Close()

	priceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"bitcoin": {"usd": 64250.5}}`))
	}))
	defer priceSrv.Close()

	price := NewPriceClient(PriceConfig{BaseURL: priceSrv.URL, Timeout: 5 * time.Second})
	a := newTestAdapter(t, srv.URL, price)

	res := a.Resolve(context.Background(), "Will Bitcoin close above $100k?", time.Now(), 3)
	require.False(t, res.APIError)
	require.Contains(t, prompt, "BTC spot price")
	require.Contains(t, prompt, "64250.50")
}

func TestResolvePriceFailureOnlySkipsEnrichment(t *testing.T) {
	var prompt string
	srv := llmServer(t, `{"outcome": "yes", "confidence": 75, "reason": "ok"}`, nil, &prompt)
	defer srv.Close()

	priceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer priceSrv.Close()

	price := NewPriceClient(PriceConfig{BaseURL: priceSrv.URL, Timeout: 5 * time.Second})
	a := newTestAdapter(t, srv.URL, price)

	res := a.Resolve(context.Background(), "Will ETH flip BTC?", time.Now(), 4)
	require.False(t, res.APIError)
	require.NotNil(t, res.Outcome)
	require.NotContains(t, prompt, "spot price")
}

func TestValidate(t *testing.T) {
	content := `{"valid": true, "reason": "verifiable future event", "category": "sports", "event_analysis": "final scheduled for July"}`
	srv := llmServer(t, content, nil, nil)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, nil)
	out := a.Validate(context.Background(), "Will team A win the final?", time.Now().Add(24*time.Hour), "0.5", "0.5")

	require.True(t, out.Valid)
	require.False(t, out.APIError)
	require.Equal(t, "sports", out.Category)
}

func TestValidateFailureSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, nil)
	out := a.Validate(context.Background(), "Will team A win?", time.Now(), "1", "1")

	require.False(t, out.Valid)
	require.True(t, out.APIError)
}

func TestDetectAsset(t *testing.T) {
	coin, label, ok := detectAsset("Will Bitcoin close above $100k this year?")
	require.True(t, ok)
	require.Equal(t, "bitcoin", coin)
	require.Equal(t, "BTC", label)

	_, _, ok = detectAsset("Will it rain in Paris tomorrow?")
	require.False(t, ok)
}
