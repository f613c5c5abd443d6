package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

func TestParseDecision(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		dec, err := parseDecision(`{"verdict":"BUY","confidence":0.85,"reasoning":["rsi oversold"]}`)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if dec.Verdict != domain.VerdictBuy || dec.Confidence != 0.85 {
			t.Errorf("unexpected decision: %+v", dec)
		}
	})

	t.Run("markdown fenced", func(t *testing.T) {
		dec, err := parseDecision("Here you go:\n```json\n{\"verdict\":\"HOLD\",\"confidence\":0.3,\"reasoning\":[]}\n```")
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if dec.Verdict != domain.VerdictHold {
			t.Errorf("expected HOLD, got %s", dec.Verdict)
		}
	})

	t.Run("unknown verdict defaults to hold", func(t *testing.T) {
		dec, err := parseDecision(`{"verdict":"SELL","confidence":0.9}`)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if dec.Verdict != domain.VerdictHold {
			t.Errorf("expected HOLD fallback, got %s", dec.Verdict)
		}
	})

	t.Run("confidence clamped", func(t *testing.T) {
		dec, err := parseDecision(`{"verdict":"BUY","confidence":1.4}`)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if dec.Confidence != 1 {
			t.Errorf("expected clamp to 1, got %f", dec.Confidence)
		}
	})

	t.Run("no json is an error", func(t *testing.T) {
		if _, err := parseDecision("I cannot help with that."); err == nil {
			t.Error("expected error")
		}
	})
}

func TestAdvisor_Advise(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected system+user messages, got %d", len(req.Messages))
		}

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: `{"verdict":"BUY","confidence":0.72,"reasoning":["momentum"]}`}},
			},
		})
	}))
	defer srv.Close()

	advisor := NewAdvisor(srv.URL, "test-key", "")
	ind := &domain.IndicatorSnapshot{RSI: 34, ADX: 28, VolumeRatio: 1.8}

	dec, err := advisor.Advise(context.Background(), "ETH/USD", ind, nil)
	if err != nil {
		t.Fatalf("advise failed: %v", err)
	}
	if dec.Verdict != domain.VerdictBuy || dec.Confidence != 0.72 {
		t.Errorf("unexpected decision: %+v", dec)
	}
}

func TestAdvisor_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	advisor := NewAdvisor(srv.URL, "test-key", "")
	_, err := advisor.Advise(context.Background(), "ETH/USD", &domain.IndicatorSnapshot{}, nil)
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
