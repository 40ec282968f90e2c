package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"trend-core/pkg/exchanges/common"
)

const defaultBaseURL = "https://api.kraken.com"

// Config holds Kraken credentials and throttling policy.
type Config struct {
	APIKey    string
	APISecret string // base64, as issued by Kraken
	BaseURL   string

	MinInterval       time.Duration // spacing between any two requests
	Timeout           time.Duration // per HTTP round trip
	InvalidKeyLockout time.Duration
	RateLimitLockout  time.Duration
	NonceRetries      int
	NonceRetryDelay   time.Duration

	Aliases map[string]string // canonical→venue asset codes; nil = DefaultAliases
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MinInterval == 0 {
		c.MinInterval = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.InvalidKeyLockout == 0 {
		c.InvalidKeyLockout = 15 * time.Minute
	}
	if c.RateLimitLockout == 0 {
		c.RateLimitLockout = 5 * time.Minute
	}
	if c.NonceRetries == 0 {
		c.NonceRetries = 3
	}
	if c.NonceRetryDelay == 0 {
		c.NonceRetryDelay = 100 * time.Millisecond
	}
}

// Observer receives request outcomes; used for metrics.
type Observer interface {
	ObserveRequest(path string, err error)
	ObserveLockout(reason string)
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHTTPClient replaces the HTTP client (tests, proxies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObserver registers a request observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithNonceSource replaces the nonce authority.
func WithNonceSource(n *common.NonceSource) Option {
	return func(c *Client) { c.nonces = n }
}

// Client is a Kraken spot REST client.
type Client struct {
	cfg        Config
	secret     []byte
	httpClient *http.Client
	nonces     *common.NonceSource
	guard      *common.Guard
	symbols    *Symbols
	log        *zap.Logger
	observer   Observer

	// private calls are issued one at a time so nonces reach the venue in order
	privMu sync.Mutex
}

// New builds a client. An empty secret yields a public-only client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.applyDefaults()

	var secret []byte
	if cfg.APISecret != "" {
		s, err := DecodeSecret(cfg.APISecret)
		if err != nil {
			return nil, err
		}
		secret = s
	}

	c := &Client{
		cfg:        cfg,
		secret:     secret,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		nonces:     common.NewNonceSource(nil),
		guard:      common.NewGuard(cfg.MinInterval),
		symbols:    NewSymbols(cfg.Aliases),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("kraken")
	c.log.Info("kraken client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("min_interval", cfg.MinInterval),
		zap.Bool("private", c.hasCredentials()))
	return c, nil
}

func (c *Client) hasCredentials() bool {
	return c.cfg.APIKey != "" && len(c.secret) > 0
}

// PublicRequest performs an unauthenticated GET and returns the result payload.
func (c *Client) PublicRequest(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if err := c.guard.WaitInterval(ctx); err != nil {
		return nil, err
	}

	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.log.Debug("public request", zap.String("path", path), zap.String("query", params.Encode()))

	result, err := c.do(req, path)
	c.observe(path, err)
	return result, err
}

// PrivateRequest performs a signed POST. Invalid-nonce responses are retried with
// a fresh nonce; invalid-key and rate-limit responses start a lockout.
func (c *Client) PrivateRequest(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if !c.hasCredentials() {
		return nil, errors.New("kraken: API key/secret required")
	}

	c.privMu.Lock()
	defer c.privMu.Unlock()

	for attempt := 0; ; attempt++ {
		result, err := c.privateOnce(ctx, path, params)
		c.observe(path, err)
		if err == nil {
			return result, nil
		}

		switch {
		case errors.Is(err, ErrInvalidKey):
			until := c.guard.Lockout(c.cfg.InvalidKeyLockout, "invalid key")
			c.lockedOut("invalid key", until, err)
			return nil, err
		case errors.Is(err, ErrRateLimited):
			until := c.guard.Lockout(c.cfg.RateLimitLockout, "rate limit")
			c.lockedOut("rate limit", until, err)
			return nil, err
		case errors.Is(err, ErrInvalidNonce) && attempt < c.cfg.NonceRetries:
			c.log.Warn("invalid nonce, retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Int64("last_nonce", c.nonces.Last()))
			if err := sleepCtx(ctx, c.cfg.NonceRetryDelay); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

func (c *Client) privateOnce(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if err := c.guard.WaitLockout(ctx); err != nil {
		return nil, err
	}
	if err := c.guard.WaitInterval(ctx); err != nil {
		return nil, err
	}

	values := make(url.Values, len(params)+1)
	for k, v := range params {
		values[k] = append([]string(nil), v...)
	}
	values.Set("nonce", c.nonces.NextString())

	signature, body := Sign(path, values, c.secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("API-Key", c.cfg.APIKey)
	req.Header.Set("API-Sign", signature)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.log.Debug("private request", zap.String("path", path), zap.String("nonce", values.Get("nonce")))
	return c.do(req, path)
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) do(req *http.Request, path string) (json.RawMessage, error) {
	req.Header.Set("User-Agent", "trend-core/1.0")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kraken %s %s: %w", req.Method, path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("kraken %s %s: read body: %w", req.Method, path, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{Method: req.Method, Path: path, StatusCode: res.StatusCode, Body: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("kraken %s: decode response: %w", path, err)
	}
	if len(env.Error) > 0 {
		apiErr := classify(path, env.Error)
		c.log.Error("kraken api error", zap.String("path", path), zap.Strings("errors", env.Error))
		return nil, apiErr
	}
	return env.Result, nil
}

func (c *Client) lockedOut(reason string, until time.Time, err error) {
	c.log.Warn("private requests locked out",
		zap.String("reason", reason),
		zap.Time("until", until),
		zap.Error(err))
	if c.observer != nil {
		c.observer.ObserveLockout(reason)
	}
}

func (c *Client) observe(path string, err error) {
	if c.observer != nil {
		c.observer.ObserveRequest(path, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
