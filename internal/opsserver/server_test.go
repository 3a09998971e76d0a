package opsserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_extractor/internal/metrics"
)

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		code   int
		want   map[string]string
	}{
		{
			name:   "all healthy",
			checks: map[string]Check{"postgres": func(context.Context) error { return nil }},
			code:   http.StatusOK,
			want:   map[string]string{"postgres": "ok"},
		},
		{
			name: "one failing",
			checks: map[string]Check{
				"postgres": func(context.Context) error { return nil },
				"rabbitmq": func(context.Context) error { return errors.New("connection closed") },
			},
			code: http.StatusServiceUnavailable,
			want: map[string]string{"postgres": "ok", "rabbitmq": "connection closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewRouter(tt.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.code, rec.Code)
			var got map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetrics(t *testing.T) {
	metrics.RecordsEmitted.WithLabelValues("catalogs").Add(2)

	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lms_records_emitted_total{stream="catalogs"}`)
}
