package contact

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/fetch"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSite(t *testing.T, pages map[string]string) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		hits []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFinderMergesContactPages(t *testing.T) {
	srv, hits := newSite(t, map[string]string{
		"/":           `<html><body><p>Welcome</p><a href="/impressum">Impressum</a><a href="https://elsewhere.example/contact">partner</a></body></html>`,
		"/contact":    `<html><body><p>hello@shop.example.com</p><p>212-555-0100</p></body></html>`,
		"/contact-us": `<html><body><p>HELLO@shop.example.com</p><p>221 Baker Street, London</p></body></html>`,
		"/impressum":  `<html><body><a href="mailto:legal@shop.example.com">legal</a></body></html>`,
	})

	f := NewFinder(fetch.New(fetch.Options{Timeout: 5 * time.Second}, quietLogger()), FinderOptions{}, quietLogger())
	info, err := f.Find(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	if want := []string{"hello@shop.example.com", "legal@shop.example.com"}; !reflect.DeepEqual(info.Emails, want) {
		t.Errorf("emails = %v, want %v", info.Emails, want)
	}
	if want := []string{"212-555-0100"}; !reflect.DeepEqual(info.Phones, want) {
		t.Errorf("phones = %v, want %v", info.Phones, want)
	}
	if info.Address != "221 Baker Street, London" {
		t.Errorf("address = %q", info.Address)
	}
	for _, p := range *hits {
		if p == "/robots.txt" {
			t.Errorf("robots.txt fetched with RespectRobots off")
		}
	}
}

func TestFinderRespectsRobots(t *testing.T) {
	srv, hits := newSite(t, map[string]string{
		"/robots.txt": "User-agent: *\nDisallow: /contact\n",
		"/":           `<p>front desk 212-555-0100</p>`,
		"/contact":    `<p>secret@shop.example.com</p>`,
	})

	f := NewFinder(fetch.New(fetch.Options{}, quietLogger()), FinderOptions{Paths: []string{"/contact"}, RespectRobots: true}, quietLogger())
	info, err := f.Find(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(info.Emails) != 0 {
		t.Errorf("emails = %v, want none from disallowed page", info.Emails)
	}
	for _, p := range *hits {
		if p == "/contact" {
			t.Fatalf("disallowed page was fetched")
		}
	}
}

func TestFinderUnreachableSite(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	f := NewFinder(fetch.New(fetch.Options{Timeout: time.Second}, quietLogger()), FinderOptions{}, quietLogger())
	if _, err := f.Find(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for unreachable site")
	}
}

func TestFinderInvalidWebsite(t *testing.T) {
	f := NewFinder(fetch.New(fetch.Options{}, quietLogger()), FinderOptions{}, quietLogger())
	if _, err := f.Find(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty website")
	}
}
