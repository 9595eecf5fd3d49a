package bets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Extraction is the oracle's best-effort field set for one pick. Every field
// is untrusted until the parser validates it locally.
type Extraction struct {
	PlayerName     string   `json:"player_name"`
	TeamName       string   `json:"team_name"`
	BetType        string   `json:"bet_type"`
	TargetValue    *float64 `json:"target_value"`
	Operator       string   `json:"operator"`
	Odds           string   `json:"odds"`
	Units          float64  `json:"units"`
	Confidence     int      `json:"confidence"`
	Interpretation string   `json:"interpretation"`
}

// Extractor is the free-text understanding boundary. Implementations may be
// slow and wrong; the parser disposes of whatever they propose.
type Extractor interface {
	Extract(ctx context.Context, rawText string) (*Extraction, error)
}

// OracleConfig configures the LLM-backed extractor.
type OracleConfig struct {
	BaseURL     string // OpenAI-compatible chat completions endpoint
	Model       string
	APIKey      string
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
	Temperature float64
}

// DefaultOracleConfig returns sane defaults for an OpenAI-compatible API.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Timeout:     30 * time.Second,
		MaxRetries:  2,
		Backoff:     time.Second,
		Temperature: 0.1,
	}
}

// Oracle calls an LLM chat-completions API to extract bet fields from raw
// text.
type Oracle struct {
	config OracleConfig
	client *http.Client
}

// NewOracle creates the LLM extractor.
func NewOracle(config OracleConfig) *Oracle {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,
	}
	return &Oracle{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

const extractionSystemPrompt = "You are an MLB betting expert. Return only valid JSON."

const extractionPromptTemplate = `Parse this MLB bet into structured JSON.

Bet input: %q

Return ONLY a JSON object with these exact fields:
{
  "player_name": "full player name or null",
  "team_name": "full team name or null",
  "bet_type": "one of: moneyline, hits, home_runs, strikeouts, rbis, runs, walks, stolen_bases, total_bases, team_total",
  "target_value": number or null,
  "operator": "over, under, exactly, or null",
  "odds": "American format, e.g. -110",
  "units": number,
  "confidence": 0-100,
  "interpretation": "plain English explanation"
}`

// Extract sends the raw text to the LLM and decodes its JSON reply. Bounded
// retries with backoff; a persistent failure surfaces as an error, never a
// defaulted extraction.
func (o *Oracle) Extract(ctx context.Context, rawText string) (*Extraction, error) {
	body := map[string]interface{}{
		"model":       o.config.Model,
		"temperature": o.config.Temperature,
		"max_tokens":  400,
		"messages": []map[string]string{
			{"role": "system", "content": extractionSystemPrompt},
			{"role": "user", "content": fmt.Sprintf(extractionPromptTemplate, rawText)},
		},
	}

	var lastErr error
	backoff := o.config.Backoff
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var ext *Extraction
		ext, lastErr = o.complete(ctx, body)
		if lastErr == nil {
			return ext, nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			break
		}
	}
	return nil, fmt.Errorf("extraction oracle: %w", lastErr)
}

func (o *Oracle) complete(ctx context.Context, body map[string]interface{}) (*Extraction, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle api error %d: %s", resp.StatusCode, string(errBody))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}

	content := stripCodeFences(completion.Choices[0].Message.Content)
	var ext Extraction
	if err := json.Unmarshal([]byte(content), &ext); err != nil {
		return nil, fmt.Errorf("oracle returned malformed JSON: %w", err)
	}
	return &ext, nil
}

// stripCodeFences removes a ```json ... ``` wrapper some models insist on.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
