// Package api implements the typed HTTP client for the ListenUp server's
// sync surface. Every method returns typed errors from internal/errors;
// raw transport failures never cross into the sync core.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/ratelimit"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRPS     = 5.0
	defaultBurst   = 10

	userAgent = "ListenUp-Client/1.0"
)

// Endpoint families for rate limiting. Pull traffic and push traffic get
// independent buckets so a long pull loop cannot starve the push path.
const (
	familySync   = "sync"
	familyMutate = "mutate"
)

// TokenProvider supplies the bearer token for outbound requests. Token
// acquisition and refresh live outside this module.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider for a fixed token. Used in tests and
// single-session tools.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Tokens            TokenProvider
}

// Client is a rate-limited, circuit-breaking ListenUp server client.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	tokens  TokenProvider
	logger  *slog.Logger
}

// New creates a new server client.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "listenup-server",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only connectivity-class failures should trip the breaker.
		// Business rejections (validation, conflicts) mean the server is
		// healthy and talking to us.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var domainErr *errors.Error
			if errors.As(err, &domainErr) {
				switch domainErr.Code {
				case errors.CodeNetwork, errors.CodeServer:
					return false
				}
			}
			return true
		},
	})

	return &Client{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: ratelimit.New(opts.RequestsPerSecond, opts.Burst),
		breaker: breaker,
		tokens:  opts.Tokens,
		logger:  logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// do executes one request: rate limit wait, circuit breaker, status
// mapping, and JSON decoding into dest (which may be nil).
func (c *Client) do(ctx context.Context, method, path, family string, query url.Values, payload, dest any) error {
	if err := c.limiter.Wait(ctx, family); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), errors.CodeCancelled, "request cancelled")
		}
		return errors.Wrap(err, errors.CodeInternal, "rate limit wait")
	}

	var bodyData []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to marshal request body")
		}
		bodyData = data
	}

	if c.logger != nil {
		c.logger.Debug("server request", "method", method, "path", path)
	}

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, query, bodyData)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return errors.Wrap(err, errors.CodeNetwork, "server temporarily unreachable")
		}
		return err
	}

	if dest != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, dest); err != nil {
			return errors.Wrap(err, errors.CodeServer, "failed to decode server response")
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnauthorized, "failed to obtain token")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.CodeCancelled, "request cancelled")
		}
		return nil, errors.Wrap(err, errors.CodeNetwork, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetwork, "failed to read response")
	}

	if err := statusError(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// statusError maps an HTTP status to a typed error, or nil for success.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Unauthorized("server rejected credentials")
	case status == http.StatusNotFound:
		return errors.NotFound("resource not found on server")
	case status == http.StatusConflict:
		return errors.Conflict("server reported a conflict")
	case status == http.StatusTooManyRequests:
		return errors.RateLimited("server rate limit exceeded")
	case status >= 500:
		return errors.Server(fmt.Sprintf("server error (status %d)", status))
	default:
		return errors.Validationf("server rejected request (status %d): %s", status, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
