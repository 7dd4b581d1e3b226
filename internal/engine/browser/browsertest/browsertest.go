// Package browsertest provides an in-memory browser whose pages render
// fixed HTML documents, for testing code written against browser.Page.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/errs"
)

// ScriptFunc answers a script the fake does not know natively.
type ScriptFunc func(p *Page, args []any) (any, error)

// Doc is one document of a Site. Rounds holds the HTML after each scroll
// round; the last one keeps being served once scrolling runs past it.
type Doc struct {
	HTML   string
	Rounds []string
}

// Site is a set of documents keyed by absolute URL.
type Site struct {
	mu        sync.Mutex
	docs      map[string]Doc
	redirects map[string]string
	failures  map[string]error
	scripts   map[string]ScriptFunc
	navs      []string
}

func NewSite() *Site {
	return &Site{
		docs:      make(map[string]Doc),
		redirects: make(map[string]string),
		failures:  make(map[string]error),
		scripts:   make(map[string]ScriptFunc),
	}
}

// Add serves html at rawURL.
func (s *Site) Add(rawURL, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[rawURL] = Doc{HTML: html}
	return s
}

// AddScroll serves html at rawURL, then each of rounds after successive scrolls.
func (s *Site) AddScroll(rawURL, html string, rounds ...string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[rawURL] = Doc{HTML: html, Rounds: rounds}
	return s
}

// Redirect makes navigation to from land on to.
func (s *Site) Redirect(from, to string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[from] = to
	return s
}

// Fail makes navigation to rawURL fail with err.
func (s *Site) Fail(rawURL string, err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[rawURL] = err
	return s
}

// Script registers a handler for js.
func (s *Site) Script(js string, fn ScriptFunc) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[js] = fn
	return s
}

// Navigations lists every URL passed to Navigate, in order.
func (s *Site) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navs...)
}

// NewPage opens a blank page on the site.
func (s *Site) NewPage() *Page {
	return &Page{site: s}
}

func (s *Site) resolve(rawURL string) (string, Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navs = append(s.navs, rawURL)
	if err, ok := s.failures[rawURL]; ok {
		return "", Doc{}, err
	}
	for i := 0; i < 5; i++ {
		to, ok := s.redirects[rawURL]
		if !ok {
			break
		}
		rawURL = to
	}
	doc, ok := s.docs[rawURL]
	if !ok {
		return "", Doc{}, fmt.Errorf("no document at %s", rawURL)
	}
	return rawURL, doc, nil
}

func (s *Site) script(js string) (ScriptFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.scripts[js]
	return fn, ok
}

type entry struct {
	url    string
	doc    Doc
	scroll int
}

// Page is a browser.Page over a Site. It is not safe for concurrent use, like a real tab.
type Page struct {
	site    *Site
	history []entry
	closed  bool
	evals   []string
}

var _ browser.Page = (*Page)(nil)

func (p *Page) current() *entry {
	if len(p.history) == 0 {
		return nil
	}
	return &p.history[len(p.history)-1]
}

// URL returns the current location.
func (p *Page) URL() string {
	if e := p.current(); e != nil {
		return e.url
	}
	return "about:blank"
}

// HTML returns the currently rendered document.
func (p *Page) HTML() string {
	e := p.current()
	if e == nil {
		return "<html><head></head><body></body></html>"
	}
	if e.scroll > 0 && len(e.doc.Rounds) > 0 {
		i := min(e.scroll, len(e.doc.Rounds)) - 1
		return e.doc.Rounds[i]
	}
	return e.doc.HTML
}

// Scrolls returns how many times the current document was scrolled.
func (p *Page) Scrolls() int {
	if e := p.current(); e != nil {
		return e.scroll
	}
	return 0
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool { return p.closed }

// Evaluations lists every script evaluated, in order.
func (p *Page) Evaluations() []string { return append([]string(nil), p.evals...) }

func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return errs.Nav("navigate", rawURL, err)
	}
	landed, doc, err := p.site.resolve(rawURL)
	if err != nil {
		return errs.Nav("navigate", rawURL, err)
	}
	p.history = append(p.history, entry{url: landed, doc: doc})
	return nil
}

func (p *Page) WaitFor(ctx context.Context, selectors ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(selectors) == 0 {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML()))
	if err != nil {
		return "", err
	}
	for _, sel := range selectors {
		if strings.TrimSpace(doc.Find(sel).First().Text()) != "" {
			return sel, nil
		}
	}
	return "", fmt.Errorf("wait for %s: %w", strings.Join(selectors, ", "), context.DeadlineExceeded)
}

func (p *Page) Evaluate(ctx context.Context, js string, args ...any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.closed {
		return nil, errors.New("page closed")
	}
	p.evals = append(p.evals, js)

	var out any
	switch js {
	case browser.ScriptSnapshot:
		out = browser.Snap{URL: p.URL(), Title: title(p.HTML()), HTML: p.HTML()}
	case browser.ScriptBack:
		if len(p.history) > 1 {
			p.history = p.history[:len(p.history)-1]
		}
		out = true
	case browser.ScriptScroll:
		if e := p.current(); e != nil {
			e.scroll++
			out = 1000 * (e.scroll + 1)
		} else {
			out = 0
		}
	case browser.ScriptClick:
		ok, err := p.click(ctx, argString(args, 0), argString(args, 1))
		if err != nil {
			return nil, err
		}
		out = ok
	case browser.ScriptReady:
		var sels []string
		if len(args) > 0 {
			sels, _ = args[0].([]string)
		}
		matched, _ := p.WaitFor(ctx, sels...)
		out = matched
	default:
		fn, ok := p.site.script(js)
		if !ok {
			return []byte("null"), nil
		}
		v, err := fn(p, args)
		if err != nil {
			return nil, err
		}
		out = v
	}
	return json.Marshal(out)
}

func (p *Page) Close() error {
	p.closed = true
	return nil
}

func (p *Page) click(ctx context.Context, sel, href string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML()))
	if err != nil {
		return false, err
	}
	base, _ := url.Parse(p.URL())
	var target string
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h, ok := s.Attr("href")
		if !ok {
			return true
		}
		abs := h
		if base != nil {
			if u, err := base.Parse(h); err == nil {
				abs = u.String()
			}
		}
		if href == "" || href == h || href == abs {
			target = abs
			return false
		}
		return true
	})
	if target == "" {
		return false, nil
	}
	if err := p.Navigate(ctx, target); err != nil {
		return false, err
	}
	return true, nil
}

func argString(args []any, i int) string {
	if i < len(args) {
		if s, ok := args[i].(string); ok {
			return s
		}
	}
	return ""
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func title(html string) string {
	if m := titleRe.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Session hands out pages of one Site.
type Session struct {
	Opts browser.Options

	site   *Site
	mu     sync.Mutex
	pages  []*Page
	closed bool
}

func (s *Session) NewPage(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	p := s.site.NewPage()
	s.pages = append(s.pages, p)
	return p, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pages returns the pages opened so far.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.pages...)
}

// Launcher launches Sessions over Site. A non-nil Err makes every launch fail.
type Launcher struct {
	Site *Site
	Err  error

	mu       sync.Mutex
	sessions []*Session
}

// Launch satisfies browser.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts browser.Options) (browser.Session, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Session{Opts: opts, site: l.Site}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Sessions returns every session launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// AllClosed reports whether every launched session was closed.
func (l *Launcher) AllClosed() bool {
	for _, s := range l.Sessions() {
		if !s.Closed() {
			return false
		}
	}
	return true
}
