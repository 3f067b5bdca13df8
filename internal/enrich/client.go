// Package enrich calls an OpenAI-compatible chat-completions endpoint to turn
// a photo prompt into narrative text.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-dailyrecord/internal/logging"
	"backend-dailyrecord/internal/metrics"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker/v2"
)

const (
	breakerName   = "enrichment-api"
	systemMessage = "You are an AI assistant specializing in photo metadata analysis."
)

var ErrUpstream = errors.New("enrichment upstream failure")

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type Client struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker[string]
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return &Client{cfg: cfg, cb: cb}
}

// Complete sends one prompt and returns the first choice's content. There is
// no retry; any failure is reported as ErrUpstream.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	start := time.Now()
	text, err := c.cb.Execute(func() (string, error) {
		return c.call(ctx, prompt)
	})
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Msg("enrichment request rejected by circuit breaker")
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		logging.Error().Err(err).Msg("enrichment request failed")
		return "", err
	}
	return text, nil
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemMessage},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrUpstream, err)
	}

	a := fiber.Post(c.cfg.Endpoint)
	a.ContentType(fiber.MIMEApplicationJSON)
	a.Set(fiber.HeaderAuthorization, "Bearer "+c.cfg.APIKey)
	a.Body(body)
	a.Timeout(c.timeout(ctx))

	code, resp, errs := a.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %v", ErrUpstream, errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return "", fmt.Errorf("%w: status %d", ErrUpstream, code)
	}

	var out completionResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty choices", ErrUpstream)
	}
	return out.Choices[0].Message.Content, nil
}

// timeout honours the earlier of the configured timeout and the context deadline.
func (c *Client) timeout(ctx context.Context) time.Duration {
	d := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
