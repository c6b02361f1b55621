package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveProvider(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveProvider("google", "ok", 250*time.Millisecond, 12, 30)
	m.ObserveProvider("google", "error", time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequestsTotal.WithLabelValues("google", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequestsTotal.WithLabelValues("google", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ProviderTokensTotal.WithLabelValues("google", "input")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.ProviderTokensTotal.WithLabelValues("google", "output")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderLatency))
}

func TestObserveProviderNilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveProvider("google", "ok", time.Second, 1, 1) })
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := New(prometheus.NewRegistry())

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })
	e.GET("/bad", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "bad") })

	for _, path := range []string{"/health", "/health", "/boom", "/bad"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/boom", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/bad", "4xx")))
}

type codedError struct{ code int }

func (e codedError) Error() string   { return "coded" }
func (e codedError) StatusCode() int { return e.code }

func TestMiddlewareUsesErrorStatusCode(t *testing.T) {
	m := New(prometheus.NewRegistry())

	e := echo.New()
	e.Use(m.Middleware())
	e.POST("/chat", func(c echo.Context) error { return codedError{code: http.StatusBadRequest} })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/chat", "4xx")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveProvider("openai", "ok", time.Second, 1, 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `llm_gateway_provider_requests_total{outcome="ok",provider="openai"} 1`))
}
