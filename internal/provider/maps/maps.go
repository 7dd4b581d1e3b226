// Package maps collects places from the map directory's search feed.
package maps

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/antibot"
	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/collect"
	"github.com/rendis/leadtap/internal/engine/contact"
	"github.com/rendis/leadtap/internal/engine/detail"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/engine/selector"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/provider"
)

const Name = "maps"

const (
	homeURL    = "https://www.google.com/maps"
	searchURL  = "https://www.google.com/maps/search/"
	feed       = "div[role='feed']"
	placeLinks = "div[role='feed'] a[href*='/maps/place/']"
	consent    = "form[action*='consent'] button, button[aria-label*='Accept all']"
)

// Headings is the readiness barrier of a place panel. The results list has
// its own h1, so a bare heading only counts inside the main panel.
var Headings = []string{"h1.DUwDvf", "h1.fontHeadlineLarge", "h1[role='heading']", "div[role='main'] h1"}

// Fields locates the values of a place panel.
var Fields = selector.Table{
	{Name: "name", Chain: selector.C(Headings...)},
	{Name: "rating", Chain: selector.C(
		"div.F7nice span[aria-hidden='true']",
		"span[role='img'][aria-label*='star'] @aria-label",
		"div.fontDisplayLarge",
	)},
	{Name: "reviews", Chain: selector.C(
		"div.F7nice span[aria-label*='review'] @aria-label",
		"span[role='img'][aria-label*='review'] @aria-label",
		"button[aria-label*='reviews'] @aria-label",
	)},
	{Name: "category", Chain: selector.C("button.DkEaL", "button[jsaction*='category']")},
	{Name: "address", Chain: selector.C(
		"button[data-item-id='address'] @aria-label",
		"button[data-item-id='address']",
		"button[aria-label*='Address'] @aria-label",
		"[data-tooltip*='address']",
	)},
	{Name: "phone", Chain: selector.C(
		"button[data-item-id*='phone:tel'] @aria-label",
		"button[data-item-id*='phone:tel']",
		"button[aria-label*='Phone'] @aria-label",
		"a[href^='tel:'] @href",
	)},
	{Name: "website", Chain: selector.C(
		"a[data-item-id='authority'] @href",
		"a[aria-label*='Website'] @href",
		"[data-tooltip*='website'] @href",
	)},
	{Name: "plus_code", Chain: selector.C(
		"button[data-item-id='oloc'] @aria-label",
		"button[data-item-id='oloc']",
	)},
	{Name: "hours", Multi: true, Chain: selector.C(
		"table.eK4R0e tr",
		"div[aria-label*='hours'] table tr",
	)},
}

// Adapter collects places by scrolling the result feed and clicking through
// to each place panel, so the feed keeps its loaded state.
type Adapter struct {
	env provider.Env
}

func New(env provider.Env) *Adapter {
	return &Adapter{env: env}
}

func (a *Adapter) Name() string { return Name }

// SearchURL is the search page for q.
func SearchURL(q model.ScrapeQuery) string {
	return searchURL + url.PathEscape(q.SearchText())
}

// Collect returns up to q.Limit places. A blocked search is retried once from
// the map home page with another agent; a second block yields no records.
func (a *Adapter) Collect(ctx context.Context, q model.ScrapeQuery) ([]model.BusinessRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, errs.E(errs.Configuration, "maps.collect", err)
	}
	log := a.env.Log(Name).WithField("query", q.SearchText())

	records, err := antibot.Guard(ctx, a.env.Controller(Name),
		func(ctx context.Context) ([]model.BusinessRecord, error) {
			return a.run(ctx, q, a.env.Options, "", log)
		},
		func(ctx context.Context) ([]model.BusinessRecord, error) {
			return a.run(ctx, q, a.env.AlternateOptions(), homeURL, log.WithField("attempt", "alternate"))
		},
	)
	if err != nil {
		return nil, err
	}

	records = provider.Finish(a.env.Stats, q, records)
	log.WithField("records", len(records)).Info("maps collection finished")
	return records, nil
}

func (a *Adapter) run(ctx context.Context, q model.ScrapeQuery, opts browser.Options, home string, log logrus.FieldLogger) ([]model.BusinessRecord, error) {
	pacing := a.env.Pacing
	var records []model.BusinessRecord
	err := a.env.Browser.WithPage(ctx, opts, func(ctx context.Context, p browser.Page) error {
		if home != "" {
			if err := a.env.WarmUp(ctx, p, home); err != nil {
				return err
			}
		}
		if err := p.Navigate(ctx, SearchURL(q)); err != nil {
			return err
		}
		dismissConsent(ctx, p, log)

		list := collect.Scroll{
			Container:    feed,
			Ready:        []string{feed},
			ReadyTimeout: pacing.ReadyTimeout,
			Extract:      extractPlaces,
			Check:        antibot.Check,
			Settle:       pacing.Settle,
			MaxRounds:    pacing.MaxScrollRounds,
			Pacer:        a.env.NewPacer(),
			Logger:       log,
		}
		engine := detail.Engine[model.BusinessRecord]{
			Spec: detail.Spec{
				Mode:          detail.Click,
				ClickSelector: placeLinks,
				Ready:         Headings,
				ReadyTimeout:  pacing.ReadyTimeout,
				Fields:        Fields,
				ListReady:     []string{feed},
				Settle:        pacing.Settle,
				Check:         antibot.Check,
			},
			Build:  build,
			Enrich: a.env.Enrich,
			Stats:  a.env.Stats,
			Logger: log,
		}

		for rec, err := range engine.Run(ctx, p, list.Collect(ctx, p, q, collect.NewSeen())) {
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func dismissConsent(ctx context.Context, p browser.Page, log logrus.FieldLogger) {
	ok, err := browser.Click(ctx, p, consent, "")
	if err != nil {
		log.WithError(err).Debug("consent dialog check failed")
		return
	}
	if ok {
		log.Debug("consent dialog dismissed")
	}
}

func extractPlaces(doc *goquery.Document, pageURL string) []model.Candidate {
	var out []model.Candidate
	doc.Find(placeLinks).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		key := provider.Absolute(pageURL, href)
		if key == "" {
			return
		}
		preview, ok := s.Attr("aria-label")
		if !ok {
			preview = selector.Clean(s.Text())
		}
		out = append(out, model.Candidate{Key: key, Preview: preview})
	})
	return out
}

func build(c model.Candidate, v selector.Values, snap browser.Snap) (model.BusinessRecord, bool) {
	name := v.Get("name")
	if name == "" {
		return model.BusinessRecord{}, false
	}
	rec := model.BusinessRecord{
		Provider:     Name,
		SourceURL:    c.Key,
		Name:         name,
		Address:      detail.StripLabel(v.Get("address")),
		Phone:        phone(v.Get("phone")),
		Category:     v.Get("category"),
		PlusCode:     detail.StripLabel(v.Get("plus_code")),
		Rating:       detail.Rating(v.Get("rating")),
		ReviewCount:  detail.Count(v.Get("reviews")),
		OpeningHours: v["hours"],
	}
	if w := v.Get("website"); w != "" {
		rec.Website = contact.NormalizeWebsite(w)
	}
	rec.Coordinates = detail.Coordinates(snap.URL)
	if rec.Coordinates == nil {
		rec.Coordinates = detail.Coordinates(c.Key)
	}
	return rec, true
}

func phone(s string) string {
	return detail.StripLabel(strings.TrimPrefix(s, "tel:"))
}
