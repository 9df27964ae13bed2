package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "wilocks_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(Config{
		Addr:     "127.0.0.1:0",
		Gatherer: reg,
		Status: func(ctx context.Context) any {
			return map[string]string{"preset": "Combat"}
		},
	})

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var resp HealthResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Status != "ok" {
			t.Errorf("health = %+v, %v", resp, err)
		}
	})

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"preset":"Combat"`) {
			t.Errorf("status = %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if !strings.Contains(rec.Body.String(), "wilocks_test_total 1") {
			t.Errorf("metrics body = %s", rec.Body.String())
		}
	})
}

func TestStatusDisabled(t *testing.T) {
	s := New(Config{Gatherer: prometheus.NewRegistry()})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status code = %d", rec.Code)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Gatherer: prometheus.NewRegistry()})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if s.IsRunning() {
		t.Error("server still marked running")
	}
}
