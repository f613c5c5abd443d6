package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

const defaultModel = "gpt-4o-mini"

// Advisor implements domain.Advisor against an OpenAI-compatible
// chat-completions endpoint. The model is asked to answer with a strict JSON
// object so the reply can be decoded into a domain.Decision.
type Advisor struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewAdvisor(baseURL, apiKey, model string) *Advisor {
	if model == "" {
		model = defaultModel
	}
	return &Advisor{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // model replies can take a while
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are a cautious crypto trading analyst for a long-only spot account.
Reply with a single JSON object and nothing else:
{"verdict":"BUY"|"HOLD","confidence":0.0-1.0,"reasoning":["short bullet", ...]}`

func (a *Advisor) Advise(ctx context.Context, pair string, ind *domain.IndicatorSnapshot, pos *domain.Position) (*domain.Decision, error) {
	prompt, err := buildPrompt(pair, ind, pos)
	if err != nil {
		return nil, err
	}

	reqBody := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call AI endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("AI endpoint returned error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("AI endpoint returned no choices")
	}

	return parseDecision(chat.Choices[0].Message.Content)
}

// buildPrompt flattens the indicator snapshot (and the open position, when
// one exists) into the user message.
func buildPrompt(pair string, ind *domain.IndicatorSnapshot, pos *domain.Position) (string, error) {
	payload := map[string]interface{}{
		"pair": pair,
		"indicators": map[string]float64{
			"rsi":             ind.RSI,
			"macd_line":       ind.MACD.Line,
			"macd_signal":     ind.MACD.Signal,
			"macd_histogram":  ind.MACD.Histogram,
			"adx":             ind.ADX,
			"volume_ratio":    ind.VolumeRatio,
			"momentum_1h_pct": ind.Momentum1h * 100,
			"momentum_4h_pct": ind.Momentum4h * 100,
			"recent_high":     ind.RecentHigh,
			"recent_low":      ind.RecentLow,
			"ema_200":         ind.EMA200,
		},
	}
	if pos != nil {
		payload["open_position"] = map[string]interface{}{
			"entry_price":    pos.EntryPrice,
			"profit_pct":     pos.ProfitPct,
			"peak_profit":    pos.PeakProfit,
			"pyramid_levels": pos.PyramidLevelsActivated,
			"regime":         pos.Regime,
		}
		payload["question"] = "Should we add to this position?"
	} else {
		payload["question"] = "Should we open a new long position?"
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt: %w", err)
	}
	return string(doc), nil
}

// parseDecision extracts the JSON object from the model reply. Models wrap
// JSON in markdown fences often enough that we cut to the outermost braces.
func parseDecision(content string) (*domain.Decision, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in AI reply: %q", content)
	}

	var dec domain.Decision
	if err := json.Unmarshal([]byte(content[start:end+1]), &dec); err != nil {
		return nil, fmt.Errorf("failed to decode AI decision: %w", err)
	}
	if dec.Verdict != domain.VerdictBuy {
		dec.Verdict = domain.VerdictHold
	}
	if dec.Confidence < 0 {
		dec.Confidence = 0
	}
	if dec.Confidence > 1 {
		dec.Confidence = 1
	}
	return &dec, nil
}
