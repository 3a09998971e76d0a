package successfactors

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// Sentinel messages the API uses in place of dedicated status codes.
// Both are matched literally against free text, so a wording change upstream
// turns empty results into retriable errors and expiries into fatal ones.
const (
	noResultsSentinel    = "No search results for provided search criteria"
	tokenExpiredSentinel = "The token has expired."
)

// Outcome is the classification of a single API response.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeEmpty is the API's "no rows matched the filter" signal.
	OutcomeEmpty
	OutcomeRetriable
	// OutcomeTokenExpired asks the executor to refresh the token used for
	// the request and retry once.
	OutcomeTokenExpired
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeRetriable:
		return "retriable"
	case OutcomeTokenExpired:
		return "token_expired"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classification carries the outcome and, for error outcomes, the error to
// surface.
type Classification struct {
	Outcome Outcome
	Err     *APIError
}

// errorBody covers both error conventions: OData errors nest a message under
// "error", OAuth errors use a flat "error_description".
type errorBody struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Classify decides what a response means. Rules are checked in order:
// 429 and 500-511 are retriable unless the body carries the no-results
// sentinel; other 4xx are fatal unless the body reports an expired token;
// everything else is a success.
func Classify(statusCode int, status string, u *url.URL, body []byte) Classification {
	switch {
	case statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode <= 511):
		if strings.Contains(errorMessage(body), noResultsSentinel) {
			return Classification{Outcome: OutcomeEmpty}
		}
		return Classification{Outcome: OutcomeRetriable, Err: newAPIError(KindRetriable, statusCode, status, u)}

	case statusCode >= 400 && statusCode < 500:
		if errorDescription(body) == tokenExpiredSentinel {
			return Classification{Outcome: OutcomeTokenExpired, Err: newAPIError(KindRetriable, statusCode, status, u)}
		}
		return Classification{Outcome: OutcomeFatal, Err: newAPIError(KindFatal, statusCode, status, u)}
	}

	return Classification{Outcome: OutcomeSuccess}
}

func newAPIError(kind ErrorKind, statusCode int, status string, u *url.URL) *APIError {
	path := ""
	if u != nil {
		path = u.Path
	}
	return &APIError{
		Kind:       kind,
		StatusCode: statusCode,
		Reason:     reasonPhrase(statusCode, status),
		Path:       path,
	}
}

// reasonPhrase extracts "Not Found" from an http.Response.Status such as
// "404 Not Found", falling back to the standard text.
func reasonPhrase(statusCode int, status string) string {
	if _, reason, ok := strings.Cut(status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(statusCode)
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Error) == 0 {
		return ""
	}
	var detail errorDetail
	if err := json.Unmarshal(eb.Error, &detail); err == nil {
		return detail.Message
	}
	var msg string
	if err := json.Unmarshal(eb.Error, &msg); err == nil {
		return msg
	}
	return ""
}

func errorDescription(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return eb.ErrorDescription
}
