package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/markis/gh-coverletter/internal/config"
	"github.com/markis/gh-coverletter/internal/logger"
	"github.com/markis/gh-coverletter/internal/stream"
)

// DefaultBaseURL is the OpenAI-compatible endpoint of IO Intelligence.
const DefaultBaseURL = "https://api.intelligence.io.solutions/api/v1"

// Roles used in chat messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
}

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	timeout    time.Duration
	logger     *log.Logger
	now        func() time.Time

	mu       sync.Mutex
	models   []Model
	modelsAt time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithConnectTimeout bounds the wait for response headers of a generation.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		tokens:     tokens,
		httpClient: getHTTPClient(),
		timeout:    DefaultTimeout,
		logger:     logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds a client for the configured provider.
func FromConfig(cfg *config.Config, l *log.Logger) *Client {
	opts := []Option{
		WithConnectTimeout(cfg.Timeout),
		WithLogger(l),
	}

	var tokens TokenSource
	switch cfg.Provider {
	case config.ProviderCopilot:
		tokens = CopilotToken{Logger: l}
		opts = append(opts, WithBaseURL(CopilotAPIBase))
	default:
		tokens = StaticToken(cfg.ResolvedAPIKey())
	}
	// An explicit base URL wins over the provider default.
	opts = append(opts, WithBaseURL(cfg.BaseURL))

	return NewClient(tokens, opts...)
}

// Generate streams a chat completion into cb. Every failure, including
// authentication, is reported through OnError and returned.
func (c *Client) Generate(ctx context.Context, req ChatRequest, cb stream.Callbacks) error {
	headers, err := c.tokens.Headers(ctx)
	if err != nil {
		return fail(cb, fmt.Errorf("failed to get headers: %w", err))
	}

	req.Stream = true
	data, err := json.Marshal(req)
	if err != nil {
		return fail(cb, fmt.Errorf("failed to marshal payload: %w", err))
	}
	headers.Set("Content-Type", "application/json")

	c.logger.Debug("requesting completion",
		"model", req.Model,
		"temperature", req.Temperature,
		"max_tokens", req.MaxTokens,
		"messages", len(req.Messages))

	return FetchStream(ctx, c.baseURL+"/chat/completions", Request{
		Method: http.MethodPost,
		Header: headers,
		Body:   data,
	}, cb,
		WithTimeout(c.timeout),
		WithFetchClient(c.httpClient),
		WithFetchLogger(c.logger),
	)
}
