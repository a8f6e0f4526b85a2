package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cvinsight/internal/analysis"
)

func newAnthropicTestAdapter(t *testing.T, handler http.HandlerFunc) *AnthropicAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewAnthropicAdapter("test-key", "", srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewAnthropicAdapter: %v", err)
	}
	return a
}

func TestAnthropicAdapterInvoke(t *testing.T) {
	a := newAnthropicTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("unexpected version header %q", got)
		}

		var body messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.System != "sys" || len(body.Messages) != 1 || body.Messages[0].Content != "user prompt" {
			t.Errorf("unexpected request body %+v", body)
		}
		if body.Model != defaultAnthropicModel || body.MaxTokens != MaxOutputTokens || body.Temperature != Temperature {
			t.Errorf("unexpected generation parameters %+v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"score\":"},{"type":"text","text":"70}"}],"stop_reason":"end_turn"}`))
	})

	out, err := a.Invoke(context.Background(), "sys", "user prompt")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != `{"score":70}` {
		t.Fatalf("unexpected reply %q", out)
	}
}

func TestAnthropicAdapterClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"auth", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			&analysis.Error{Kind: analysis.ErrKindProviderRefused, Reason: analysis.ReasonAuth}},
		{"rate limit", http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`,
			&analysis.Error{Kind: analysis.ErrKindProviderRefused, Reason: analysis.ReasonQuota}},
		{"credit", http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"Your credit balance is too low"}}`,
			&analysis.Error{Kind: analysis.ErrKindProviderRefused, Reason: analysis.ReasonQuota}},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			analysis.ErrProviderUnavailable},
		{"refusal", http.StatusOK, `{"content":[],"stop_reason":"refusal"}`,
			&analysis.Error{Kind: analysis.ErrKindProviderRefused, Reason: analysis.ReasonPolicy}},
		{"empty", http.StatusOK, `{"content":[{"type":"text","text":"   "}],"stop_reason":"end_turn"}`,
			analysis.ErrProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newAnthropicTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := a.Invoke(context.Background(), "sys", "user")
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			if e, ok := analysis.AsError(err); !ok || e.Provider != analysis.ProviderC {
				t.Fatalf("expected provider C error, got %#v", err)
			}
		})
	}
}

func TestGuardedAdapterTimesOut(t *testing.T) {
	release := make(chan struct{})
	a := newAnthropicTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	guarded := WithGuard(a, 50*time.Millisecond, nil)
	_, err := guarded.Invoke(context.Background(), "sys", "user")
	if !errors.Is(err, analysis.ErrProviderTimeout) {
		t.Fatalf("expected ProviderTimeout, got %v", err)
	}
}
