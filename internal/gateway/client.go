package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// SessionTokenKey is the persisted key holding the WooCommerce session token.
	SessionTokenKey = "woo-session"

	sessionHeader = "woocommerce-session"
	maxErrorBody  = 4 << 10
	maxBody       = 4 << 20
)

type FetchPolicy int

const (
	NetworkOnly FetchPolicy = iota
	CacheFirst
)

type Envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors,omitempty"`
}

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type Client struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*Envelope]
	state    cache.Store
	queries  cache.Store
	sfg      singleflight.Group
	logger   zerolog.Logger
}

type Option func(*Client)

// WithSessionState persists the WooCommerce session token in s.
func WithSessionState(s cache.Store) Option {
	return func(c *Client) { c.state = s }
}

// WithQueryCache keeps query results in s for cache-first reads.
func WithQueryCache(s cache.Store) Option {
	return func(c *Client) { c.queries = s }
}

// WithBreaker shares one breaker between clients talking to the same endpoint.
func WithBreaker(b *gobreaker.CircuitBreaker[*Envelope]) Option {
	return func(c *Client) { c.breaker = b }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(endpoint string, httpClient *http.Client, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid graphql endpoint %q", endpoint)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		endpoint: u.String(),
		http:     httpClient,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker("graphql", 5, 30*time.Second, c.logger)
	}
	return c, nil
}

// NewBreaker trips after maxFailures consecutive transport failures. Gateway
// level errors do not count.
func NewBreaker(name string, maxFailures uint32, openTimeout time.Duration, logger zerolog.Logger) *gobreaker.CircuitBreaker[*Envelope] {
	return gobreaker.NewCircuitBreaker[*Envelope](gobreaker.Settings{
		Name:    name,
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

// Do posts one GraphQL operation. A non-nil envelope may come back together
// with GraphQLErrors when the gateway returned partial data.
func (c *Client) Do(ctx context.Context, op Operation, vars map[string]any) (*Envelope, error) {
	body, err := json.Marshal(request{Query: op.Query, OperationName: op.Name, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op.Name, err)
	}

	env, err := c.breaker.Execute(func() (*Envelope, error) {
		return c.roundTrip(ctx, op.Name, body)
	})
	if err != nil {
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			err = &NetworkError{Op: op.Name, Err: err}
		}
		return nil, err
	}
	if len(env.Errors) > 0 {
		return env, env.Errors
	}
	return env, nil
}

func (c *Client) roundTrip(ctx context.Context, op string, body []byte) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	token := c.sessionToken(ctx)
	if token != "" {
		req.Header.Set(sessionHeader, "Session "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.storeSessionToken(ctx, resp.Header.Get(sessionHeader), token)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && (env.Data != nil || len(env.Errors) > 0) {
		return &env, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &NetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(raw, maxErrorBody),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	if decodeErr == nil {
		decodeErr = errors.New("response has neither data nor errors")
	}
	return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Body: truncate(raw, maxErrorBody), Err: decodeErr}
}

func (c *Client) sessionToken(ctx context.Context) string {
	if c.state == nil {
		return ""
	}
	raw, err := c.state.Get(ctx, SessionTokenKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Ctx(ctx).Err(err).Msg("read session token")
		}
		return ""
	}
	return string(raw)
}

func (c *Client) storeSessionToken(ctx context.Context, header, current string) {
	if c.state == nil || header == "" {
		return
	}
	token := strings.TrimPrefix(header, "Session ")
	if token == current {
		return
	}
	if err := c.state.Set(ctx, SessionTokenKey, []byte(token)); err != nil {
		c.logger.Warn().Ctx(ctx).Err(err).Msg("persist session token")
	}
}

// query runs a cacheable operation. Successful network results replace the
// cached copy; results carrying errors are never cached.
func (c *Client) query(ctx context.Context, op Operation, policy FetchPolicy) (*Envelope, error) {
	if policy == CacheFirst && c.queries != nil {
		raw, err := c.queries.Get(ctx, op.Name)
		if err == nil {
			return &Envelope{Data: raw}, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Ctx(ctx).Err(err).Str("operation", op.Name).Msg("query cache read failed")
		}
	}

	v, err, _ := c.sfg.Do(op.Name, func() (interface{}, error) {
		env, err := c.Do(ctx, op, nil)
		if err == nil && c.queries != nil && env.Data != nil {
			if errSet := c.queries.Set(ctx, op.Name, env.Data); errSet != nil {
				c.logger.Warn().Ctx(ctx).Err(errSet).Str("operation", op.Name).Msg("query cache write failed")
			}
		}
		return env, err
	})
	env, _ := v.(*Envelope)
	return env, err
}

// ResetStore drops every cached query result so the next read goes to the network.
func (c *Client) ResetStore(ctx context.Context) error {
	for _, op := range cacheableOperations {
		c.sfg.Forget(op.Name)
	}
	if c.queries == nil {
		return nil
	}
	if err := c.queries.Clear(ctx); err != nil {
		return fmt.Errorf("reset query cache: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
