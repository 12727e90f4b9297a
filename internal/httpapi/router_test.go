package httpapi

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestWithConcurrencyLimitRejectsOverflow(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started.Done()
		<-release
		w.WriteHeader(http.StatusOK)
	})
	limited := withConcurrencyLimit(inner, 1)

	done := make(chan struct{})
	go func() {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		close(done)
	}()

	started.Wait()

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when at capacity, got %d", rec.Code)
	}

	close(release)
	<-done
}

func TestWithConcurrencyLimitDefaultsWhenMaxIsZero(t *testing.T) {
	limited := withConcurrencyLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), 0)
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected default capacity to allow a single request, got %d", rec.Code)
	}
}
