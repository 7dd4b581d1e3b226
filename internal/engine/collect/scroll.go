package collect

import (
	"context"
	"iter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/model"
)

const defaultMaxRounds = 30

// Scroll collects from an infinite-scroll results container.
type Scroll struct {
	URL          string // navigated first when set
	Container    string // scrolled element; empty scrolls the document
	Ready        []string
	ReadyTimeout time.Duration
	Extract      ExtractFunc
	Check        CheckFunc
	Settle       time.Duration // wait after each scroll
	MaxRounds    int
	Pacer        *Pacer
	Logger       logrus.FieldLogger
}

// Collect yields new candidates round by round. It stops when q.Limit is reached,
// when a round adds no new key, or after MaxRounds rounds.
//
// The consumer may drive the same page between yields (click-through details),
// as long as it restores the list view before asking for the next candidate.
func (c Scroll) Collect(ctx context.Context, p browser.Page, q model.ScrapeQuery, seen *Seen) iter.Seq2[model.Candidate, error] {
	c.Logger = orDiscard(c.Logger)
	maxRounds := c.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	return func(yield func(model.Candidate, error) bool) {
		if c.URL != "" {
			if err := c.Pacer.Wait(ctx); err != nil {
				yield(model.Candidate{}, err)
				return
			}
			if err := p.Navigate(ctx, c.URL); err != nil {
				yield(model.Candidate{}, err)
				return
			}
		}
		if len(c.Ready) > 0 {
			wctx, cancel := withTimeout(ctx, c.ReadyTimeout)
			_, err := p.WaitFor(wctx, c.Ready...)
			cancel()
			if err != nil {
				c.Logger.WithError(err).Debug("results container not ready")
			}
		}

		emitted := 0
		for round := 1; ; round++ {
			snap, err := browser.Snapshot(ctx, p)
			if err != nil {
				if round == 1 || ctx.Err() != nil {
					yield(model.Candidate{}, errs.Nav("snapshot", c.URL, err))
				} else {
					c.Logger.WithError(err).Warn("scroll round failed, stopping")
				}
				return
			}
			if c.Check != nil {
				if err := c.Check(snap); err != nil {
					if round == 1 {
						yield(model.Candidate{}, err)
					}
					return
				}
			}
			doc, err := snap.Doc()
			if err != nil {
				return
			}

			fresh := 0
			for _, cand := range c.Extract(doc, snap.URL) {
				if !seen.Add(cand.Key) {
					continue
				}
				fresh++
				cand.Page = round
				if !yield(cand, nil) {
					return
				}
				emitted++
				if q.Reached(emitted) {
					return
				}
			}
			log := c.Logger.WithFields(logrus.Fields{"round": round, "new": fresh, "total": emitted})
			if fresh == 0 {
				log.Debug("scroll round added nothing, stopping")
				return
			}
			if round >= maxRounds {
				log.Debug("scroll round limit reached")
				return
			}
			log.Debug("scroll round collected")

			if err := c.Pacer.Wait(ctx); err != nil {
				return
			}
			if _, err := browser.Scroll(ctx, p, c.Container); err != nil {
				c.Logger.WithError(err).Warn("scroll failed, stopping")
				return
			}
			if err := browser.Sleep(ctx, c.Settle); err != nil {
				return
			}
		}
	}
}
