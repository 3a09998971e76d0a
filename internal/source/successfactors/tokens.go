package successfactors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"lms_extractor/internal/domain"
	"lms_extractor/internal/metrics"
)

const (
	tokenPath    = "/learning/oauth-api/rest/v1/token"
	resourceType = "learning_public_api"
)

// Credentials are the immutable client-credential settings for the tenant.
type Credentials struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	UserID       string
	CompanyID    string
}

// Token is a bearer token value bound to the identity it was issued for.
type Token struct {
	Value    string
	Identity domain.Identity
}

type tokenRequest struct {
	GrantType string     `json:"grant_type"`
	Scope     tokenScope `json:"scope"`
}

type tokenScope struct {
	UserID       string `json:"userId"`
	CompanyID    string `json:"companyId"`
	UserType     string `json:"userType"`
	ResourceType string `json:"resourceType"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenManager caches one bearer token per identity for the process
// lifetime. Tokens are fetched lazily and replaced only when the API reports
// them expired. Concurrent callers replacing the same stale value share one
// exchange. The lock guards the cache only; it is never held across a
// network call.
type TokenManager struct {
	creds      Credentials
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu     sync.RWMutex
	tokens map[domain.Identity]Token
	group  singleflight.Group
}

// NewTokenManager creates a token manager. limiter may be nil.
func NewTokenManager(creds Credentials, httpClient *http.Client, limiter *rate.Limiter, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		creds:      creds,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
		tokens:     make(map[domain.Identity]Token, 2),
	}
}

// Token returns the cached token for identity, exchanging credentials on
// first use.
func (m *TokenManager) Token(ctx context.Context, identity domain.Identity) (Token, error) {
	if tok, ok := m.cached(identity); ok {
		return tok, nil
	}
	return m.replace(ctx, identity, "")
}

// Refresh performs a client-credentials exchange for identity and replaces
// the cached token. The other identity's token is left untouched.
func (m *TokenManager) Refresh(ctx context.Context, identity domain.Identity) (Token, error) {
	value, err := m.exchange(ctx, identity)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(string(identity), "failure").Inc()
		return Token{}, err
	}
	metrics.TokenExchanges.WithLabelValues(string(identity), "success").Inc()

	tok := Token{Value: value, Identity: identity}
	m.mu.Lock()
	m.tokens[identity] = tok
	m.mu.Unlock()

	m.logger.Info("token created", "identity", identity)
	return tok, nil
}

// RefreshExpired replaces the token for identity unless the cache already
// holds a value different from stale, in which case another caller has
// refreshed it and the cached token is returned as is.
func (m *TokenManager) RefreshExpired(ctx context.Context, identity domain.Identity, stale string) (Token, error) {
	return m.replace(ctx, identity, stale)
}

// replace exchanges a new token for identity unless the cache has already
// moved past stale. An empty stale value means no token was cached yet.
func (m *TokenManager) replace(ctx context.Context, identity domain.Identity, stale string) (Token, error) {
	v, err, _ := m.group.Do(string(identity)+"/"+stale, func() (any, error) {
		if tok, ok := m.cached(identity); ok && tok.Value != stale {
			return tok, nil
		}
		if stale != "" {
			m.logger.Warn("refreshing token", "identity", identity)
		}
		return m.Refresh(ctx, identity)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// IdentityOf reports which identity's cached token equals value.
func (m *TokenManager) IdentityOf(value string) (domain.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, tok := range m.tokens {
		if tok.Value == value {
			return id, true
		}
	}
	return "", false
}

func (m *TokenManager) cached(identity domain.Identity) (Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[identity]
	return tok, ok
}

func (m *TokenManager) exchange(ctx context.Context, identity domain.Identity) (string, error) {
	if !identity.Valid() {
		return "", &TokenExchangeError{Identity: identity, Err: fmt.Errorf("unknown identity %q", identity)}
	}

	payload, err := json.Marshal(tokenRequest{
		GrantType: "client_credentials",
		Scope: tokenScope{
			UserID:       m.creds.UserID,
			CompanyID:    m.creds.CompanyID,
			UserType:     string(identity),
			ResourceType: resourceType,
		},
	})
	if err != nil {
		return "", &TokenExchangeError{Identity: identity, Err: fmt.Errorf("marshal request: %w", err)}
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", &TokenExchangeError{Identity: identity, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.creds.BaseURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return "", &TokenExchangeError{Identity: identity, Err: fmt.Errorf("create request: %w", err)}
	}
	req.SetBasicAuth(m.creds.ClientID, m.creds.ClientSecret)
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &TokenExchangeError{Identity: identity, Err: fmt.Errorf("execute request: %w", err)}
	}
	body, err := readAndClose(resp.Body)
	if err != nil {
		return "", &TokenExchangeError{Identity: identity, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TokenExchangeError{
			Identity:   identity,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", snippet(body, 300)),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &TokenExchangeError{Identity: identity, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if tr.AccessToken == "" {
		return "", &TokenExchangeError{Identity: identity, StatusCode: resp.StatusCode, Err: errors.New("access_token missing from response")}
	}

	return tr.AccessToken, nil
}
