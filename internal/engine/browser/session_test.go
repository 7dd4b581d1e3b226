package browser_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/browser/browsertest"
	"github.com/rendis/leadtap/internal/engine/errs"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestWithClosesSessionOnError(t *testing.T) {
	l := &browsertest.Launcher{Site: browsertest.NewSite()}
	m := browser.NewManagerWith(l.Launch, quietLogger())

	boom := errors.New("extraction failed")
	err := m.With(context.Background(), browser.DefaultOptions(), func(ctx context.Context, s browser.Session) error {
		if _, err := s.NewPage(ctx); err != nil {
			t.Fatalf("NewPage: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(l.Sessions()) != 1 || !l.AllClosed() {
		t.Fatalf("session not closed after error")
	}
}

func TestWithClosesSessionOnCancel(t *testing.T) {
	l := &browsertest.Launcher{Site: browsertest.NewSite()}
	m := browser.NewManagerWith(l.Launch, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	err := m.WithPage(ctx, browser.DefaultOptions(), func(ctx context.Context, p browser.Page) error {
		cancel()
		return p.Navigate(ctx, "https://example.com/")
	})
	if !errs.Is(err, errs.Navigation) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want navigation error wrapping context.Canceled", err)
	}
	if !l.AllClosed() {
		t.Fatalf("session leaked after cancellation")
	}
	if pages := l.Sessions()[0].Pages(); len(pages) != 1 || !pages[0].Closed() {
		t.Fatalf("page not closed")
	}
}

func TestWithClosesSessionOnPanic(t *testing.T) {
	l := &browsertest.Launcher{Site: browsertest.NewSite()}
	m := browser.NewManagerWith(l.Launch, quietLogger())

	func() {
		defer func() { recover() }()
		m.With(context.Background(), browser.DefaultOptions(), func(context.Context, browser.Session) error {
			panic("selector table bug")
		})
	}()
	if !l.AllClosed() {
		t.Fatalf("session leaked after panic")
	}
}

func TestOpenLaunchFailure(t *testing.T) {
	l := &browsertest.Launcher{Err: errors.New("chromium not found")}
	m := browser.NewManagerWith(l.Launch, quietLogger())

	called := false
	err := m.With(context.Background(), browser.DefaultOptions(), func(context.Context, browser.Session) error {
		called = true
		return nil
	})
	if !errs.Is(err, errs.SessionLaunch) {
		t.Fatalf("err = %v, want session launch error", err)
	}
	if called {
		t.Fatalf("fn ran without a session")
	}
}

func TestOpenRejectsUnknownEngine(t *testing.T) {
	l := &browsertest.Launcher{Site: browsertest.NewSite()}
	m := browser.NewManagerWith(l.Launch, quietLogger())

	opts := browser.DefaultOptions()
	opts.Engine = "netscape"
	if _, err := m.Open(context.Background(), opts); !errs.Is(err, errs.Configuration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	if len(l.Sessions()) != 0 {
		t.Fatalf("launched despite invalid options")
	}
}

func TestPageHelpers(t *testing.T) {
	site := browsertest.NewSite().
		Add("https://example.com/list", `<html><head><title>Results</title></head><body>
			<div id="feed"><a class="item" href="/item/1">One</a><a class="item" href="/item/2">Two</a></div></body></html>`).
		Add("https://example.com/item/2", `<html><body><h1>Two</h1></body></html>`)
	p := site.NewPage()
	ctx := context.Background()

	if err := p.Navigate(ctx, "https://example.com/list"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	snap, err := browser.Snapshot(ctx, p)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Title != "Results" || snap.URL != "https://example.com/list" {
		t.Fatalf("snapshot = %q %q", snap.Title, snap.URL)
	}

	ok, err := browser.Click(ctx, p, "a.item", "https://example.com/item/2")
	if err != nil || !ok {
		t.Fatalf("Click = %v, %v", ok, err)
	}
	if sel, err := p.WaitFor(ctx, "h2", "h1"); err != nil || sel != "h1" {
		t.Fatalf("WaitFor = %q, %v", sel, err)
	}

	if err := browser.Back(ctx, p); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if p.URL() != "https://example.com/list" {
		t.Fatalf("after Back url = %s", p.URL())
	}

	if ok, _ := browser.Click(ctx, p, "a.item", "/item/99"); ok {
		t.Fatalf("Click matched a missing link")
	}
	if _, err := browser.Scroll(ctx, p, "#feed"); err != nil || p.Scrolls() != 1 {
		t.Fatalf("Scroll: %v, scrolls = %d", err, p.Scrolls())
	}
}

func TestOptionsAgent(t *testing.T) {
	opts := browser.DefaultOptions()
	if opts.Agent() == "" {
		t.Fatalf("random agent is empty")
	}
	fixed := opts.WithAgent("TestAgent/1.0")
	if fixed.Agent() != "TestAgent/1.0" || fixed.RandomAgent {
		t.Fatalf("WithAgent not applied: %+v", fixed)
	}
	withCookies := opts.WithCookies(browser.Cookie{Name: "li_at", Value: "x"})
	if len(withCookies.Cookies) != 1 || len(opts.Cookies) != 0 {
		t.Fatalf("WithCookies must not alias the original")
	}
}
