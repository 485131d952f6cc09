package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/mlcommons/mobile-results/pkg/config"
)

func TestRateLimitMiddleware_EnforcesPerIPLimit(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := &server{log: log}

	handler := s.rateLimitMiddleware(config.RateLimitTier{
		RequestsPerMinute: 3,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v0/health", nil)
		req.RemoteAddr = remoteAddr

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec.Code
	}

	// The burst equals the per-minute limit, so the fourth request
	// from the same address is the first one rejected.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send("192.0.2.1:4000"))
	}

	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1:4000"))

	// Another address has its own bucket.
	assert.Equal(t, http.StatusOK, send("192.0.2.2:4000"))
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "192.0.2.1:4000",
			want:       "192.0.2.1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.1",
			want:       "192.0.2.1",
		},
		{
			name:       "forwarded header wins",
			remoteAddr: "10.0.0.1:4000",
			forwarded:  "192.0.2.7",
			want:       "192.0.2.7",
		},
		{
			name:       "forwarded chain takes first hop",
			remoteAddr: "10.0.0.1:4000",
			forwarded:  "192.0.2.7,10.0.0.2,10.0.0.3",
			want:       "192.0.2.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, extractIP(req))
		})
	}
}
