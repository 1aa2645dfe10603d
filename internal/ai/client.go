package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/edulabs/tutor-gateway/internal/chat"
	"github.com/edulabs/tutor-gateway/internal/circuitbreaker"
	"github.com/edulabs/tutor-gateway/internal/upstream"
)

const systemPrompt = `You are a knowledgeable and patient tutor specializing in high school mathematics and physics.
Your goal is to help students understand concepts deeply through clear explanations and guided problem-solving.
Always break down complex topics into simpler parts and use analogies when helpful.
If a student seems confused, try explaining the concept in a different way.
Encourage critical thinking by asking probing questions.`

// Completion is the provider's answer plus the token count it reported.
type Completion struct {
	Response   string
	TokensUsed int
}

type Config struct {
	Endpoints   []string // OpenAI-compatible base URLs
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64 // Sampling temperature; zero is deterministic, negative means unset
	Strategy    string  // Endpoint selection: "round_robin" or "random"
}

// Client calls an OpenAI-compatible chat-completions upstream. Requests
// rotate across healthy endpoints and run behind a circuit breaker so a dead
// provider fails fast.
type Client struct {
	config   Config
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	selector upstream.Selector
	prober   *upstream.Prober
}

func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("at least one completion endpoint is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4-turbo-preview"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = 0.7
	}

	selector, err := upstream.NewSelector(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	prober := upstream.NewProber(upstream.ProberConfig{Endpoints: cfg.Endpoints})
	prober.Start()

	return &Client{
		config:   cfg,
		http:     &http.Client{Timeout: 60 * time.Second},
		breaker:  circuitbreaker.New(circuitbreaker.Config{}),
		selector: selector,
		prober:   prober,
	}, nil
}

func (c *Client) Close() {
	c.prober.Stop()
}

// Upstreams reports how many completion endpoints currently pass probes.
func (c *Client) Upstreams() (healthy, total int) {
	return c.prober.Counts()
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the tutoring prompt, the replayed history and the new
// student message upstream and returns the answer with the reported token
// count.
func (c *Client) Complete(ctx context.Context, history []chat.Turn, userMessage string) (*Completion, error) {
	messages := make([]message, 0, len(history)+2)
	messages = append(messages, message{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, message{Role: "user", Content: userMessage})

	body, err := json.Marshal(completionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	endpoint := c.selector.Next(c.prober.Healthy())
	if endpoint == "" {
		return nil, errors.New("no completion endpoints available")
	}

	var completion *Completion
	err = c.breaker.Call(func() error {
		var callErr error
		completion, callErr = c.post(ctx, endpoint, body)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return completion, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (*Completion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("completion upstream returned %d: %s", resp.StatusCode, payload)
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return nil, errors.New("completion response contained no choices")
	}

	return &Completion{
		Response:   parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}
