package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
)

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var page Page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, http.Header{"Referer": {"https://shop.example/"}}, &page, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("Referer") != "https://shop.example/" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}
	if !strings.Contains(collyReq.Headers.Get("Accept"), "text/html") {
		t.Fatalf("expected html accept header, got %q", collyReq.Headers.Get("Accept"))
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/html"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com/p/1"),
		},
	})
	if page.StatusCode != http.StatusOK || string(page.Body) != "body" || page.URL != "https://example.com/p/1" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.ContentType != "text/html" {
		t.Fatalf("expected content type copied, got %q", page.ContentType)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}

	hooks.onError(&colly.Response{
		StatusCode: http.StatusNotFound,
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/gone")},
	}, errors.New("Not Found"))
	var statusErr *StatusError
	if !errors.As(fetchErr, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status error, got %v", fetchErr)
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	t.Parallel()

	gotUA := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>ok</title></head></html>")
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "Mozilla/5.0 test", Timeout: time.Second})
	page, err := f.Fetch(context.Background(), srv.URL+"/p/1", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if ua := <-gotUA; ua != "Mozilla/5.0 test" {
		t.Fatalf("expected user agent to be sent, got %q", ua)
	}
	if !strings.Contains(string(page.Body), "<title>ok</title>") {
		t.Fatalf("unexpected body %q", page.Body)
	}
}

func TestFetchRevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second})
	for range 2 {
		if _, err := f.Fetch(context.Background(), srv.URL, nil); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected two requests, got %d", got)
	}
}

func TestFetchStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), srv.URL, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", statusErr.StatusCode)
	}
}

func TestFetchCapsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, strings.Repeat("a", 4096))
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second, MaxBodySize: 1024})
	page, err := f.Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(page.Body) != 1024 {
		t.Fatalf("expected body capped at 1024 bytes, got %d", len(page.Body))
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := New(Config{Timeout: 50 * time.Millisecond})
	start := time.Now()
	if _, err := f.Fetch(context.Background(), srv.URL, nil); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected fetch to give up quickly, took %v", elapsed)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
