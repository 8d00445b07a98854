// Package client is the HTTP transport for the jobs API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/application-tracker/internal/job"
)

const (
	// DefaultTimeout bounds a whole request, body included.
	DefaultTimeout = 60 * time.Second

	// DefaultPageSize is the page size requested when listing jobs.
	DefaultPageSize = 50
)

// TokenProvider supplies the bearer token attached to requests that do not
// carry their own.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config holds client configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	PageSize   int
	Tokens     TokenProvider
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the jobs API.
type Client struct {
	baseURL  *url.URL
	pageSize int
	tokens   TokenProvider
	http     *http.Client
	logger   *slog.Logger
}

// New creates a client for the API rooted at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme: %q", base.Scheme)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL:  base,
		pageSize: cfg.PageSize,
		tokens:   cfg.Tokens,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}, nil
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CreateJobStream submits a job and returns the streamed response body.
// The caller owns the returned reader and must close it.
func (c *Client) CreateJobStream(ctx context.Context, payload job.CreatePayload, token string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, "/jobs", nil, payload, token)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrStreamUnavailable
	}
	return resp.Body, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id, token string) (job.Resource, error) {
	var w job.WireJob
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil, token, &w); err != nil {
		return job.Resource{}, err
	}
	return job.FromWire(w)
}

// ListJobs fetches every job, following next_cursor until the last page.
func (c *Client) ListJobs(ctx context.Context, token string) ([]job.Resource, error) {
	jobs := make([]job.Resource, 0)
	cursor := ""

	for {
		query := url.Values{}
		query.Set("page_size", strconv.Itoa(c.pageSize))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var env job.JobsEnvelope
		if err := c.doJSON(ctx, http.MethodGet, "/jobs", query, nil, token, &env); err != nil {
			return nil, err
		}

		for _, w := range env.Jobs {
			r, err := job.FromWire(w)
			if err != nil {
				return nil, fmt.Errorf("job %q: %w", w.ID, err)
			}
			jobs = append(jobs, r)
		}

		if env.NextCursor == "" || env.NextCursor == cursor {
			return jobs, nil
		}
		cursor = env.NextCursor
	}
}

// UpdateJob sends a partial update and returns the job as stored.
func (c *Client) UpdateJob(ctx context.Context, payload job.UpdatePayload, token string) (job.Resource, error) {
	var w job.WireJob
	if err := c.doJSON(ctx, http.MethodPatch, "/jobs/"+url.PathEscape(payload.ID), nil, payload, token, &w); err != nil {
		return job.Resource{}, err
	}
	return job.FromWire(w)
}

// DeleteJob removes a job.
func (c *Client) DeleteJob(ctx context.Context, id, token string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, nil, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, token string, out any) error {
	resp, err := c.do(ctx, method, path, query, body, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// do sends the request and returns the response only for 2xx statuses.
// Any other status closes the body and becomes a TransportError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, token string) (*http.Response, error) {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	bearer, err := c.bearer(ctx, token)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug("API request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) bearer(ctx context.Context, token string) (string, error) {
	if token != "" {
		return token, nil
	}
	if c.tokens == nil {
		return "", ErrMissingToken
	}
	t, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	if t == "" {
		return "", ErrMissingToken
	}
	return t, nil
}
