// Package browser owns headless browser sessions and the small page surface the engine drives.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is the capability set the engine needs from a browser tab.
// Scripts passed to Evaluate are JavaScript function expressions; args are
// JSON-encoded and applied to it. The result comes back as JSON.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selectors ...string) (string, error)
	Evaluate(ctx context.Context, js string, args ...any) ([]byte, error)
	Close() error
}

// Session is one isolated browser process.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Scripts understood by every Page implementation.
const (
	ScriptSnapshot = `() => ({url: location.href, title: document.title, html: document.documentElement.outerHTML})`

	ScriptBack = `() => { history.back(); return true }`

	// Returns the container's scroll height after scrolling it to the bottom.
	ScriptScroll = `(sel) => {
	const el = (sel && document.querySelector(sel)) || document.scrollingElement || document.body;
	el.scrollTop = el.scrollHeight;
	return el.scrollHeight;
}`

	// Clicks the first element matching sel, or the one whose href equals href.
	ScriptClick = `(sel, href) => {
	const els = Array.from(document.querySelectorAll(sel));
	const el = href ? els.find(e => e.href === href || e.getAttribute('href') === href) : els[0];
	if (!el) return false;
	el.scrollIntoView({block: 'center'});
	el.click();
	return true;
}`

	// Returns the first selector whose element has non-empty text, or "".
	ScriptReady = `(sels) => {
	for (const s of sels) {
		const el = document.querySelector(s);
		if (el && el.textContent.trim() !== '') return s;
	}
	return '';
}`
)

const readyPoll = 250 * time.Millisecond

// Snap is the rendered state of a page at one instant.
type Snap struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Doc parses the snapshot HTML.
func (s Snap) Doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(s.HTML))
}

// EvalInto evaluates js and decodes its JSON result into v.
func EvalInto(ctx context.Context, p Page, v any, js string, args ...any) error {
	raw, err := p.Evaluate(ctx, js, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

// Snapshot captures the page URL, title and outer HTML.
func Snapshot(ctx context.Context, p Page) (Snap, error) {
	var s Snap
	err := EvalInto(ctx, p, &s, ScriptSnapshot)
	return s, err
}

// Back navigates one step back in history.
func Back(ctx context.Context, p Page) error {
	_, err := p.Evaluate(ctx, ScriptBack)
	return err
}

// Scroll scrolls container (the document when empty) to its bottom and returns its scroll height.
func Scroll(ctx context.Context, p Page, container string) (int, error) {
	var h int
	err := EvalInto(ctx, p, &h, ScriptScroll, container)
	return h, err
}

// Click clicks an element of sel, the one linking to href when href is set.
// It reports false when nothing matched.
func Click(ctx context.Context, p Page, sel, href string) (bool, error) {
	var ok bool
	err := EvalInto(ctx, p, &ok, ScriptClick, sel, href)
	return ok, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pollReady is the readiness barrier shared by the real backends: it polls
// until one of selectors has non-empty text or ctx ends.
func pollReady(ctx context.Context, eval func(context.Context, string, ...any) ([]byte, error), selectors []string) (string, error) {
	if len(selectors) == 0 {
		return "", nil
	}
	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()
	for {
		raw, err := eval(ctx, ScriptReady, selectors)
		if err == nil {
			var matched string
			if json.Unmarshal(raw, &matched) == nil && matched != "" {
				return matched, nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", fmt.Errorf("wait for %s: %w", strings.Join(selectors, ", "), ctx.Err())
		}
	}
}
