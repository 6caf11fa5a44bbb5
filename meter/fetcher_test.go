package meter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func meterServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, strings.TrimPrefix(srv.URL, "http://")
}

func TestURL(t *testing.T) {
	if got := URL("10.0.0.5"); got != "http://10.0.0.5/api/v1/data" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestFetchSuccess(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	_, host := meterServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(kitchenJSON))
	})

	f := NewFetcher("kitchen", host, 0)
	defer f.Close()

	r, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r.ActivePowerW != 450.2 || r.WifiStrength != -50 {
		t.Fatalf("unexpected reading %+v", r)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "GET /api/v1/data" {
		t.Fatalf("unexpected requests %v", paths)
	}
	if f.client.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout %s, got %s", DefaultTimeout, f.client.Timeout)
	}
}

func TestFetchReusesConnection(t *testing.T) {
	var conns int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(kitchenJSON))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			atomic.AddInt32(&conns, 1)
		}
	}
	srv.Start()
	defer srv.Close()

	f := NewFetcher("kitchen", strings.TrimPrefix(srv.URL, "http://"), 0)
	defer f.Close()
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background()); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&conns); got != 1 {
		t.Fatalf("expected one reused connection, got %d", got)
	}
}

func TestFetchNon2xx(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusServiceUnavailable, http.StatusInternalServerError} {
		_, host := meterServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(kitchenJSON))
		})

		_, err := NewFetcher("kitchen", host, 0).Fetch(context.Background())
		var ferr *FetchError
		if !errors.As(err, &ferr) {
			t.Fatalf("status %d: expected *FetchError, got %v", status, err)
		}
		if ferr.StatusCode != status {
			t.Fatalf("expected status %d recorded, got %d", status, ferr.StatusCode)
		}
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	_, host := meterServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := NewFetcher("kitchen", host, 50*time.Millisecond).Fetch(context.Background())
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	_, err := NewFetcher("kitchen", host, time.Second).Fetch(context.Background())
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if ferr.StatusCode != 0 {
		t.Fatalf("expected no status for transport error, got %d", ferr.StatusCode)
	}
}

func TestFetchValidationError(t *testing.T) {
	_, host := meterServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"wifi_strength": -50}`))
	})

	_, err := NewFetcher("kitchen", host, 0).Fetch(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Meter != "kitchen" {
		t.Fatalf("expected meter name on validation error, got %q", verr.Meter)
	}
	var ferr *FetchError
	if errors.As(err, &ferr) {
		t.Fatalf("validation failure must not be a fetch error")
	}
}
