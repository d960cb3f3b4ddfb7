// Package github discovers repositories through the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/httpclient"
)

// Token is the container token of the *Client.
var Token = container.TypeOf[*Client]()

// Repository is one search hit.
type Repository struct {
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	Language    string    `json:"language"`
	Stars       int       `json:"stargazers_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Client searches GitHub with a personal access token.
type Client struct {
	http   *httpclient.Client
	logger *zap.Logger
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg config.GitHubConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("github: token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http: httpclient.New(httpclient.Options{
			Name:    "github",
			BaseURL: cfg.BaseURL,
			Headers: map[string]string{
				"Authorization":        "Bearer " + cfg.Token,
				"Accept":               "application/vnd.github+json",
				"X-GitHub-Api-Version": "2022-11-28",
			},
			Logger: logger,
		}),
		logger: logger,
	}, nil
}

type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []Repository `json:"items"`
}

// SearchRepositories returns up to limit repositories matching query, most
// starred first.
func (c *Client) SearchRepositories(ctx context.Context, query string, limit int) ([]Repository, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("github: empty search query")
	}
	if limit <= 0 || limit > 100 {
		limit = 5
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(limit))

	var out searchResponse
	if err := c.http.GetJSON(ctx, "/search/repositories?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("search repositories: %w", err)
	}
	c.logger.Debug("repository search",
		zap.String("query", query),
		zap.Int("total", out.TotalCount),
		zap.Int("returned", len(out.Items)))
	return out.Items, nil
}

// Digest renders repos as a chat-friendly list.
func Digest(query string, repos []Repository) string {
	if len(repos) == 0 {
		return fmt.Sprintf("No repositories found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Top repositories for %q:\n", query)
	for i, r := range repos {
		fmt.Fprintf(&b, "\n%d. %s (%d★", i+1, r.FullName, r.Stars)
		if r.Language != "" {
			fmt.Fprintf(&b, ", %s", r.Language)
		}
		b.WriteString(")\n")
		if r.Description != "" {
			b.WriteString(r.Description + "\n")
		}
		b.WriteString(r.HTMLURL + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

type rateLimitResponse struct {
	Resources struct {
		Core struct {
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}

// HealthCheck verifies the token and that the core quota is not exhausted.
func (c *Client) HealthCheck(ctx context.Context) error {
	var rl rateLimitResponse
	if err := c.http.GetJSON(ctx, "/rate_limit", &rl); err != nil {
		return err
	}
	if rl.Resources.Core.Remaining == 0 {
		reset := time.Unix(rl.Resources.Core.Reset, 0).UTC()
		return fmt.Errorf("rate limit exhausted until %s", reset.Format(time.RFC3339))
	}
	return nil
}
