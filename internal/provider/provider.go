// Package provider holds what every directory adapter shares: the collection
// contract, the runtime environment and contact enrichment.
package provider

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/antibot"
	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/collect"
	"github.com/rendis/leadtap/internal/engine/contact"
	"github.com/rendis/leadtap/internal/engine/useragent"
	"github.com/rendis/leadtap/internal/model"
)

// Collector is the contract every business directory adapter exposes.
// A nil error with fewer records than asked for is a normal outcome.
type Collector interface {
	Name() string
	Collect(ctx context.Context, q model.ScrapeQuery) ([]model.BusinessRecord, error)
}

// ContactFinder looks up contact details on a business website.
type ContactFinder interface {
	Find(ctx context.Context, website string) (model.ContactInfo, error)
}

var _ ContactFinder = (*contact.Finder)(nil)

// Pacing holds the waits adapters apply between steps.
type Pacing struct {
	Delay           time.Duration
	Jitter          time.Duration
	Settle          time.Duration
	ReadyTimeout    time.Duration
	BlockDelay      time.Duration
	MaxScrollRounds int
	DetailWorkers   int
}

// Env is the runtime an adapter works in. Every Collect call opens and closes
// its own browser session through Browser.
type Env struct {
	Browser        *browser.Manager
	Options        browser.Options
	Pacing         Pacing
	Contacts       ContactFinder // nil disables website enrichment
	ContactTimeout time.Duration
	Stats          *model.Stats
	Logger         logrus.FieldLogger
}

// Log returns the env logger tagged with the provider name.
func (e Env) Log(provider string) logrus.FieldLogger {
	l := e.Logger
	if l == nil {
		d := logrus.New()
		d.SetOutput(io.Discard)
		l = d
	}
	return l.WithField("provider", provider)
}

// NewPacer returns a fresh pacer for one collection operation.
func (e Env) NewPacer() *collect.Pacer {
	return collect.NewPacer(e.Pacing.Delay, e.Pacing.Jitter)
}

// Controller returns the anti-detection policy for provider.
func (e Env) Controller(provider string) *antibot.Controller {
	return &antibot.Controller{Delay: e.Pacing.BlockDelay, Stats: e.Stats, Logger: e.Log(provider)}
}

// AlternateOptions is the session profile used after a block: same setup, another agent.
func (e Env) AlternateOptions() browser.Options {
	return e.Options.WithAgent(useragent.Other(e.Options.UserAgent))
}

// WarmUp opens home and lingers on it like a visitor would before searching.
func (e Env) WarmUp(ctx context.Context, p browser.Page, home string) error {
	if err := p.Navigate(ctx, home); err != nil {
		return err
	}
	return browser.Sleep(ctx, e.Pacing.BlockDelay)
}

// Enrich merges contact details found on rec's website into rec.Contacts.
// Lookup failures leave the record untouched.
func (e Env) Enrich(ctx context.Context, rec *model.BusinessRecord) {
	if e.Contacts == nil || rec.Website == "" {
		return
	}
	if e.ContactTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.ContactTimeout)
		defer cancel()
	}
	info, err := e.Contacts.Find(ctx, rec.Website)
	if err != nil {
		e.Log(rec.Provider).WithFields(logrus.Fields{"website": rec.Website, "error": err}).Debug("contact lookup failed")
		return
	}
	if info.Empty() {
		return
	}
	if rec.Contacts != nil {
		info = rec.Contacts.Merge(info)
	}
	rec.Contacts = &info
}

// Absolute resolves href against base, dropping the fragment.
func Absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	u, err := b.Parse(href)
	if err != nil {
		return href
	}
	u.Fragment = ""
	return u.String()
}

// Finish counts what a Collect call produced and caps it to q.Limit.
func Finish(stats *model.Stats, q model.ScrapeQuery, records []model.BusinessRecord) []model.BusinessRecord {
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	for i := range records {
		if records[i].Query == "" {
			records[i].Query = q.SearchText()
		}
	}
	stats.AddFound(len(records))
	return records
}
