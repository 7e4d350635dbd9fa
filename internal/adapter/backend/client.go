package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/aurahealth/internal/adapter/metrics"
	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/platform/retry"
	"github.com/pscheid92/aurahealth/internal/platform/version"
)

const maxResponseBytes = 1 << 20

var defaultRetryPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   200 * time.Millisecond,
	MaxBackoff:       2 * time.Second,
	RateLimitBackoff: 2 * time.Second,
}

type Config struct {
	BaseURL          string
	SettingsRoot     string
	AppID            string
	FunctionsVersion string
	Timeout          time.Duration
}

// Client talks JSON to the Aura backend. Protected calls carry a bearer token
// fetched from the token source on every request.
type Client struct {
	cfg         Config
	base        *url.URL
	httpClient  *http.Client
	tokens      domain.TokenSource
	breaker     circuitbreaker.CircuitBreaker[any]
	retryPolicy retry.Policy
	metrics     *metrics.BackendMetrics
	clock       clockwork.Clock
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m *metrics.BackendMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retryPolicy = p }
}

func NewClient(cfg Config, tokens domain.TokenSource, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", cfg.BaseURL)
	}
	if cfg.SettingsRoot == "" {
		cfg.SettingsRoot = "prod"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		cfg:         cfg,
		base:        base,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		tokens:      tokens,
		retryPolicy: defaultRetryPolicy,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retryPolicy.Clock = c.clock
	c.breaker = c.newBreaker()

	return c, nil
}

// newBreaker opens at a 60% failure rate over at least 5 calls in 10s.
// Only transport errors and 5xx responses count as failures.
func (c *Client) newBreaker() circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "backend",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if c.metrics != nil {
				c.metrics.BreakerTransition(e.NewState.String(), stateToFloat(e.NewState))
			}
		}).
		Build()
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

type request struct {
	operation string
	method    string
	path      string
	// token overrides the token source when set.
	token string
	body  any
}

// Login exchanges an identity token for the backend user.
// A 404 surfaces as an error matching domain.ErrNotFound.
func (c *Client) Login(ctx context.Context, token string) (*domain.User, error) {
	var user domain.User
	req := request{operation: "login", method: http.MethodPost, path: "/auth/login", token: token}
	if err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Signup(ctx context.Context, token string, body domain.SignupRequest) (*domain.User, error) {
	var user domain.User
	req := request{operation: "signup", method: http.MethodPost, path: "/auth/signup", token: token, body: body}
	if err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	req := request{operation: "me", method: http.MethodGet, path: "/auth/me"}
	if err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateMe(ctx context.Context, patch domain.UserPatch) (*domain.User, error) {
	var user domain.User
	req := request{operation: "update_me", method: http.MethodPatch, path: "/auth/me", body: patch}
	if err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// PublicSettings fetches the app's public settings, retrying transient failures.
func (c *Client) PublicSettings(ctx context.Context, appID string) (*domain.AppPublicSettings, error) {
	req := request{
		operation: "public_settings",
		method:    http.MethodGet,
		path:      "/" + c.cfg.SettingsRoot + "/public-settings/by-id/" + url.PathEscape(appID),
	}

	policy := c.retryPolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Retrying public settings fetch", "attempt", attempt, "backoff", backoff, "error", err)
		if c.metrics != nil {
			c.metrics.RetryScheduled(req.operation)
		}
	}

	envelope, err := retry.Do(ctx, policy, classify, func(ctx context.Context) (*settingsEnvelope, error) {
		var env settingsEnvelope
		if err := c.do(ctx, req, &env); err != nil {
			return nil, err
		}
		return &env, nil
	})
	if err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return &domain.AppPublicSettings{ID: appID}, nil
	}
	return envelope.Data, nil
}

type settingsEnvelope struct {
	Data *domain.AppPublicSettings `json:"data"`
}

func (c *Client) CreatePatientProfile(ctx context.Context, profile domain.PatientProfile) error {
	req := request{operation: "patient_profile", method: http.MethodPost, path: "/users/patient-profile", body: profile}
	return c.do(ctx, req, nil)
}

func (c *Client) CreateDoctorProfile(ctx context.Context, profile domain.DoctorProfile) error {
	req := request{operation: "doctor_profile", method: http.MethodPost, path: "/doctor-profile", body: profile}
	return c.do(ctx, req, nil)
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	if !c.breaker.TryAcquirePermit() {
		return fmt.Errorf("%s: %w", req.operation, circuitbreaker.ErrOpen)
	}

	start := c.clock.Now()
	status, err := c.send(ctx, req, out)
	if c.metrics != nil {
		c.metrics.ObserveRequest(req.operation, status, c.clock.Since(start))
	}

	if countsAsFailure(ctx, err) {
		c.breaker.RecordError(err)
	} else {
		c.breaker.RecordSuccess()
	}

	if err != nil {
		return fmt.Errorf("%s: %w", req.operation, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req request, out any) (int, error) {
	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return 0, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.base.JoinPath(req.path).String(), body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if err := c.setHeaders(ctx, httpReq, req.token); err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, decodeError(resp, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, token string) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.cfg.AppID != "" {
		req.Header.Set("x-app-id", c.cfg.AppID)
	}
	if c.cfg.FunctionsVersion != "" {
		req.Header.Set("x-functions-version", c.cfg.FunctionsVersion)
	}

	if token == "" && c.tokens != nil {
		fresh, err := c.tokens.BearerToken(ctx)
		if err != nil {
			return fmt.Errorf("fetch bearer token: %w", err)
		}
		token = fresh
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func countsAsFailure(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

func classify(err error) retry.Action {
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		return retry.Retry
	}
	switch {
	case apiErr.Status == http.StatusTooManyRequests:
		return retry.After
	case apiErr.Status >= http.StatusInternalServerError:
		return retry.Retry
	default:
		return retry.Stop
	}
}

type errorBody struct {
	Detail    json.RawMessage `json:"detail"`
	Message   string          `json:"message"`
	ExtraData struct {
		Reason string `json:"reason"`
	} `json:"extra_data"`
}

func decodeError(resp *http.Response, data []byte) error {
	apiErr := &domain.APIError{Status: resp.StatusCode}

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Reason = body.ExtraData.Reason
		apiErr.Detail = detailText(body.Detail)
		if apiErr.Detail == "" {
			apiErr.Detail = body.Message
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &throttledError{APIError: apiErr, wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	return apiErr
}

// detailText accepts both string and structured detail fields.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type throttledError struct {
	*domain.APIError
	wait time.Duration
}

func (e *throttledError) Unwrap() error             { return e.APIError }
func (e *throttledError) RetryAfter() time.Duration { return e.wait }

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
