// Package detail turns candidates into records by visiting their detail views.
package detail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/engine/selector"
	"github.com/rendis/leadtap/internal/model"
)

// Mode is how a detail view is reached.
type Mode int

const (
	// Direct loads the candidate key as a URL.
	Direct Mode = iota
	// Click clicks the candidate in the list view so client-side state survives,
	// then goes back to the list afterwards.
	Click
)

// ErrNoRecord is returned when a detail view yields nothing worth keeping.
var ErrNoRecord = errors.New("no record in detail view")

// Spec is a provider's description of its detail views.
type Spec struct {
	Mode          Mode
	ClickSelector string   // list elements carrying the candidate href
	Ready         []string // anchors whose non-empty text means the view is scrapeable
	ReadyTimeout  time.Duration
	Fields        selector.Table
	ListReady     []string // list anchors to wait for after going back
	Settle        time.Duration
	Check         func(browser.Snap) error
}

// BuildFunc turns resolved values into a record. Returning false drops the candidate.
type BuildFunc[T any] func(c model.Candidate, v selector.Values, snap browser.Snap) (T, bool)

// EnrichFunc completes a built record, typically with contact details from its website.
type EnrichFunc[T any] func(ctx context.Context, rec *T)

// Engine extracts records of type T.
type Engine[T any] struct {
	Spec   Spec
	Build  BuildFunc[T]
	Enrich EnrichFunc[T]
	Stats  *model.Stats
	Logger logrus.FieldLogger
}

func (e *Engine[T]) logger() logrus.FieldLogger {
	if e.Logger != nil {
		return e.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Extract visits one candidate's detail view on p and builds its record.
func (e *Engine[T]) Extract(ctx context.Context, p browser.Page, c model.Candidate) (T, error) {
	var zero T
	switch e.Spec.Mode {
	case Click:
		ok, err := browser.Click(ctx, p, e.Spec.ClickSelector, c.Key)
		if err != nil {
			return zero, errs.Nav("click", c.Key, err)
		}
		if !ok {
			return zero, fmt.Errorf("candidate %s not in list view", c.Key)
		}
		defer e.restore(ctx, p)
	default:
		if err := p.Navigate(ctx, c.Key); err != nil {
			return zero, err
		}
	}

	if len(e.Spec.Ready) > 0 {
		wctx, cancel := timeout(ctx, e.Spec.ReadyTimeout)
		_, err := p.WaitFor(wctx, e.Spec.Ready...)
		cancel()
		if err != nil {
			return zero, errs.Nav("ready", c.Key, err)
		}
	}

	snap, err := browser.Snapshot(ctx, p)
	if err != nil {
		return zero, errs.Nav("snapshot", c.Key, err)
	}
	if e.Spec.Check != nil {
		if err := e.Spec.Check(snap); err != nil {
			return zero, err
		}
	}
	doc, err := snap.Doc()
	if err != nil {
		return zero, fmt.Errorf("parse detail: %w", err)
	}

	vals := e.Spec.Fields.Extract(doc.Selection, e.logger().WithField("key", c.Key))
	rec, ok := e.Build(c, vals, snap)
	if !ok {
		return zero, ErrNoRecord
	}
	if e.Enrich != nil {
		e.Enrich(ctx, &rec)
	}
	return rec, nil
}

// restore returns the list view to where pagination left it.
func (e *Engine[T]) restore(ctx context.Context, p browser.Page) {
	if err := browser.Back(ctx, p); err != nil {
		e.logger().WithError(err).Debug("back navigation failed")
		return
	}
	if len(e.Spec.ListReady) > 0 {
		wctx, cancel := timeout(ctx, e.Spec.ReadyTimeout)
		_, _ = p.WaitFor(wctx, e.Spec.ListReady...)
		cancel()
	}
	_ = browser.Sleep(ctx, e.Spec.Settle)
}

// Run extracts every candidate of cands on p, in discovery order.
// Per-candidate failures are logged, counted and skipped. A collection error or
// a fatal extraction error ends the sequence with that error; cancellation ends it quietly.
func (e *Engine[T]) Run(ctx context.Context, p browser.Page, cands iter.Seq2[model.Candidate, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for c, err := range cands {
			if err != nil {
				yield(zero, err)
				return
			}
			e.Stats.AddCandidate()
			rec, err := e.Extract(ctx, p, c)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errs.Fatal(err) {
					yield(zero, err)
					return
				}
				e.skip(c, err)
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// PageFunc opens a page for one parallel worker and returns its release func.
type PageFunc func(ctx context.Context) (browser.Page, func(), error)

// Parallel extracts direct-URL candidates with up to workers pages at once,
// each opened by open. Results keep the order of cands; failed candidates are left out.
func (e *Engine[T]) Parallel(ctx context.Context, open PageFunc, cands []model.Candidate, workers int) ([]T, error) {
	if e.Spec.Mode != Direct {
		return nil, errors.New("parallel extraction needs direct detail URLs")
	}
	if workers <= 0 {
		workers = 1
	}
	if len(cands) == 0 {
		return nil, nil
	}
	workers = min(workers, len(cands))

	var (
		pages   []browser.Page
		openErr error
	)
	for w := 0; w < workers; w++ {
		p, release, err := open(ctx)
		if err != nil {
			openErr = err
			e.logger().WithError(err).Warn("detail worker page unavailable")
			continue
		}
		defer release()
		pages = append(pages, p)
	}
	if len(pages) == 0 {
		return nil, openErr
	}

	type slot struct {
		rec T
		ok  bool
	}
	results := make([]slot, len(cands))
	next := make(chan int)

	var wg sync.WaitGroup
	for _, p := range pages {
		wg.Add(1)
		go func(p browser.Page) {
			defer wg.Done()
			for i := range next {
				e.Stats.AddCandidate()
				rec, err := e.Extract(ctx, p, cands[i])
				if err != nil {
					if ctx.Err() == nil {
						e.skip(cands[i], err)
					}
					continue
				}
				results[i] = slot{rec: rec, ok: true}
			}
		}(p)
	}

feed:
	for i := range cands {
		select {
		case next <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(next)
	wg.Wait()

	out := make([]T, 0, len(cands))
	for _, r := range results {
		if r.ok {
			out = append(out, r.rec)
		}
	}
	return out, nil
}

func (e *Engine[T]) skip(c model.Candidate, err error) {
	e.Stats.AddSkipped()
	e.logger().WithFields(logrus.Fields{"key": c.Key, "error": err}).Warn("candidate skipped")
}

func timeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
