package collect

import (
	"context"
	"iter"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/model"
)

// ExtractFunc reads the candidates rendered in a list document.
type ExtractFunc func(doc *goquery.Document, pageURL string) []model.Candidate

// CheckFunc inspects a loaded list page; an error marks the page unusable.
type CheckFunc func(snap browser.Snap) error

// Paged walks numbered list pages.
type Paged struct {
	URL          func(page int) string
	Ready        []string // readiness anchors of a list page
	ReadyTimeout time.Duration
	Extract      ExtractFunc
	HasNext      func(doc *goquery.Document) bool // nil: only an empty page ends the walk
	Check        CheckFunc
	Pacer        *Pacer
	Logger       logrus.FieldLogger
}

// Collect yields new candidates from pages q.PageRange in order, at most q.Limit of them.
// Failing to load the first page ends the sequence with an error; later page
// failures are logged and skipped. An empty page ends the walk.
func (c Paged) Collect(ctx context.Context, p browser.Page, q model.ScrapeQuery, seen *Seen) iter.Seq2[model.Candidate, error] {
	c.Logger = orDiscard(c.Logger)
	return func(yield func(model.Candidate, error) bool) {
		emitted := 0
		for i, n := range q.PageRange.Pages() {
			first := i == 0
			log := c.Logger.WithField("page", n)

			if err := c.Pacer.Wait(ctx); err != nil {
				if first {
					yield(model.Candidate{}, err)
				}
				return
			}

			pageURL := c.URL(n)
			doc, err := c.load(ctx, p, pageURL)
			if err != nil {
				if first || ctx.Err() != nil {
					yield(model.Candidate{}, err)
					return
				}
				log.WithError(err).Warn("list page skipped")
				continue
			}

			cands := c.Extract(doc, pageURL)
			if len(cands) == 0 {
				log.Debug("empty list page, end of results")
				return
			}
			fresh := 0
			for _, cand := range cands {
				if !seen.Add(cand.Key) {
					continue
				}
				fresh++
				cand.Page = n
				if !yield(cand, nil) {
					return
				}
				emitted++
				if q.Reached(emitted) {
					return
				}
			}
			log.WithFields(logrus.Fields{"found": len(cands), "new": fresh}).Debug("list page collected")

			if c.HasNext != nil && !c.HasNext(doc) {
				log.Debug("last list page reached")
				return
			}
		}
	}
}

func (c Paged) load(ctx context.Context, p browser.Page, pageURL string) (*goquery.Document, error) {
	if err := p.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	if len(c.Ready) > 0 {
		wctx, cancel := withTimeout(ctx, c.ReadyTimeout)
		_, err := p.WaitFor(wctx, c.Ready...)
		cancel()
		if err != nil {
			// No anchor can also mean no results; let extraction decide.
			c.Logger.WithFields(logrus.Fields{"url": pageURL, "error": err}).Debug("list readiness not reached")
		}
	}
	snap, err := browser.Snapshot(ctx, p)
	if err != nil {
		return nil, errs.Nav("snapshot", pageURL, err)
	}
	if c.Check != nil {
		if err := c.Check(snap); err != nil {
			return nil, err
		}
	}
	doc, err := snap.Doc()
	if err != nil {
		return nil, errs.Nav("parse", pageURL, err)
	}
	return doc, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
