// Package scoring rates how relevant a geopolitical event is for a
// stakeholder profile by calling the external severity scorer.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 5 * time.Second

// ErrInvalidScore is returned when the scorer answers outside [0,1].
var ErrInvalidScore = errors.New("relevance score out of range")

// Config holds scorer client configuration.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client calls the scorer service.
type Client struct {
	client *resty.Client
}

type scoreRequest struct {
	Profile domain.StakeholderProfile `json:"profile"`
	Event   *domain.GeopoliticalEvent `json:"event"`
}

type scoreResponse struct {
	RelevanceScore *float64 `json:"relevanceScore"`
}

// NewClient creates a new scorer client.
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("scorer: URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(config.URL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json")
	if config.APIKey != "" {
		client.SetHeader("X-API-Key", config.APIKey)
	}

	return &Client{client: client}, nil
}

// Score returns the relevance of event for profile in [0,1].
func (c *Client) Score(ctx context.Context, profile domain.StakeholderProfile, event *domain.GeopoliticalEvent) (float64, error) {
	var result scoreResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(scoreRequest{Profile: profile, Event: event}).
		SetResult(&result).
		Post("/score")
	if err != nil {
		return 0, fmt.Errorf("score request: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("scorer returned status %d", resp.StatusCode())
	}
	if result.RelevanceScore == nil {
		return 0, fmt.Errorf("%w: missing relevanceScore", ErrInvalidScore)
	}

	score := *result.RelevanceScore
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}
	return score, nil
}
