package successfactors

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

const (
	testClientID     = "acme"
	testClientSecret = "s3cret"
)

type apiCall struct {
	Path  string
	Query string
	Auth  string
}

// fakeLMS serves the token endpoint and delegates every other path to api.
// Tokens are issued from the tokens list in order; once it is exhausted the
// last value is reused. With no tokens every exchange is rejected.
type fakeLMS struct {
	*httptest.Server
	api    http.HandlerFunc
	tokens []string
	// tokenHandler replaces the default token endpoint when set.
	tokenHandler http.HandlerFunc
	// tokenDelay holds every exchange open so concurrent callers overlap.
	tokenDelay time.Duration

	mu        sync.Mutex
	exchanges []tokenRequest
	calls     []apiCall
}

func newFakeLMS(t *testing.T, api http.HandlerFunc, tokens ...string) *fakeLMS {
	t.Helper()
	return startFakeLMS(t, &fakeLMS{api: api, tokens: tokens})
}

func startFakeLMS(t *testing.T, f *fakeLMS) *fakeLMS {
	t.Helper()
	tokenHandler := f.serveToken
	if f.tokenHandler != nil {
		tokenHandler = f.tokenHandler
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+tokenPath, tokenHandler)
	mux.HandleFunc("/", f.serveAPI)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeLMS) serveToken(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != testClientID || pass != testClientSecret {
		writeBody(w, http.StatusUnauthorized, `{"error":"invalid_client"}`)
		return
	}

	var req tokenRequest
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &req); err != nil {
		writeBody(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
		return
	}

	f.mu.Lock()
	f.exchanges = append(f.exchanges, req)
	n := len(f.exchanges)
	f.mu.Unlock()

	if f.tokenDelay > 0 {
		time.Sleep(f.tokenDelay)
	}
	if len(f.tokens) == 0 {
		writeBody(w, http.StatusUnauthorized, `{"error":"unauthorized_client"}`)
		return
	}
	tok := f.tokens[min(n, len(f.tokens))-1]
	writeBody(w, http.StatusOK, fmt.Sprintf(`{"access_token":%q,"token_type":"Bearer","expires_in":1800}`, tok))
}

func (f *fakeLMS) serveAPI(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")})
	f.mu.Unlock()

	if f.api == nil {
		writeBody(w, http.StatusOK, `{"value":[]}`)
		return
	}
	f.api(w, r)
}

func (f *fakeLMS) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exchanges)
}

func (f *fakeLMS) exchangeAt(i int) tokenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges[i]
}

func (f *fakeLMS) apiCalls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func (f *fakeLMS) credentials() Credentials {
	return Credentials{
		BaseURL:      f.URL,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		UserID:       "api_user",
		CompanyID:    "acme",
	}
}

func (f *fakeLMS) executor(bc BreakerConfig) (*Executor, *TokenManager) {
	logger := discardLogger()
	tokens := NewTokenManager(f.credentials(), f.Client(), nil, logger)
	return NewExecutor(f.Client(), tokens, nil, bc, logger), tokens
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
