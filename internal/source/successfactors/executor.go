package successfactors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"lms_extractor/internal/domain"
	"lms_extractor/internal/metrics"
)

// Response is a classified, fully read API response. Empty is set when the
// API reported that no rows matched the request filter; Body is nil then.
type Response struct {
	StatusCode int
	Body       []byte
	Empty      bool
}

// BreakerConfig controls the upstream circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// errRetriableAttempt marks an attempt as a breaker failure; the attempt
// itself still carries the classification.
var errRetriableAttempt = errors.New("retriable attempt")

type attempt struct {
	resp  Response
	cls   Classification
	token string
}

// Executor issues single API calls with the right bearer token, classifies
// the response and transparently recovers from one token expiry per call.
// Backoff for other retriable failures belongs to the caller.
type Executor struct {
	httpClient *http.Client
	tokens     *TokenManager
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*attempt]
	logger     *slog.Logger
}

// NewExecutor creates an executor. limiter may be nil.
func NewExecutor(httpClient *http.Client, tokens *TokenManager, limiter *rate.Limiter, bc BreakerConfig, logger *slog.Logger) *Executor {
	if bc.MaxFailures == 0 {
		bc.MaxFailures = 5
	}
	if bc.Timeout == 0 {
		bc.Timeout = time.Minute
	}

	e := &Executor{
		httpClient: httpClient,
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger,
	}

	metrics.CircuitBreakerState.Set(0)
	e.breaker = gobreaker.NewCircuitBreaker[*attempt](gobreaker.Settings{
		Name:    "lms-api",
		Timeout: bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.Set(stateToFloat(to))
		},
	})

	return e
}

// Execute performs method on rawURL as identity. Success and empty results
// return a Response; every other outcome returns an error that satisfies
// IsRetriable, IsFatal or IsTokenExchange.
func (e *Executor) Execute(ctx context.Context, method, rawURL string, identity domain.Identity) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	a, err := e.send(ctx, method, u, identity)
	if err != nil {
		return nil, err
	}

	if a.cls.Outcome == OutcomeTokenExpired {
		e.logger.Warn("token expired", "identity", identity, "path", u.Path)
		if _, err := e.tokens.RefreshExpired(ctx, e.identityOf(a.token, identity), a.token); err != nil {
			return nil, err
		}

		a, err = e.send(ctx, method, u, identity)
		if err != nil {
			return nil, err
		}
		if a.cls.Outcome == OutcomeTokenExpired {
			// Leave a fresh token behind for the caller's next attempt.
			if _, err := e.tokens.RefreshExpired(ctx, e.identityOf(a.token, identity), a.token); err != nil {
				return nil, err
			}
			return nil, a.cls.Err
		}
	}

	switch a.cls.Outcome {
	case OutcomeSuccess:
		return &a.resp, nil
	case OutcomeEmpty:
		e.logger.Warn("no search results for provided search criteria", "url", unescape(u))
		return &Response{StatusCode: a.resp.StatusCode, Empty: true}, nil
	default:
		return nil, a.cls.Err
	}
}

// identityOf maps the token a request carried back to the identity holding
// it in the cache, defaulting to the identity the request was issued for.
func (e *Executor) identityOf(token string, fallback domain.Identity) domain.Identity {
	if id, ok := e.tokens.IdentityOf(token); ok {
		return id
	}
	return fallback
}

func (e *Executor) send(ctx context.Context, method string, u *url.URL, identity domain.Identity) (*attempt, error) {
	tok, err := e.tokens.Token(ctx, identity)
	if err != nil {
		return nil, err
	}

	a, err := e.breaker.Execute(func() (*attempt, error) {
		return e.roundTrip(ctx, method, u, tok)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.APIRequests.WithLabelValues(string(identity), "rejected").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, ErrUpstreamUnavailable)
	case errors.Is(err, errRetriableAttempt):
		return a, nil
	case err != nil:
		return nil, err
	}
	return a, nil
}

// roundTrip builds a fresh request for every attempt so a retry never
// reuses a request carrying a stale Authorization header.
func (e *Executor) roundTrip(ctx context.Context, method string, u *url.URL, tok Token) (*attempt, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Accept", contentTypeJSON)

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(string(tok.Identity)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(string(tok.Identity), "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("execute request %s: %w: %w", u.Path, err, domain.ErrRetriable)
	}

	body, err := readAndClose(resp.Body)
	if err != nil {
		metrics.APIRequests.WithLabelValues(string(tok.Identity), "error").Inc()
		return nil, fmt.Errorf("read body %s: %w: %w", u.Path, err, domain.ErrRetriable)
	}

	cls := Classify(resp.StatusCode, resp.Status, req.URL, body)
	metrics.APIRequests.WithLabelValues(string(tok.Identity), cls.Outcome.String()).Inc()

	a := &attempt{
		resp:  Response{StatusCode: resp.StatusCode, Body: body},
		cls:   cls,
		token: tok.Value,
	}
	if cls.Outcome == OutcomeRetriable {
		return a, errRetriableAttempt
	}
	return a, nil
}

func unescape(u *url.URL) string {
	s, err := url.QueryUnescape(u.String())
	if err != nil {
		return u.Redacted()
	}
	return s
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
