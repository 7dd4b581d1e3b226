// Package directory collects local business listings whose list cards already
// carry everything worth keeping, so no detail page is visited.
package directory

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

// Site describes one directory as data.
type Site struct {
	Name   string
	Home   string // visited first by the alternate route; empty skips the warm-up
	Search func(q model.ScrapeQuery) string
	Ready  []string

	// Anchor matches the listing links; Card is the closest ancestor holding
	// the rest of the listing. An anchor without a Card ancestor is its own card.
	Anchor  string
	Card    string
	MinName int // anchors with shorter text are image or icon links

	Fields selector.Table
}

var YellowPages = Site{
	Name: "yellowpages",
	Search: func(q model.ScrapeQuery) string {
		v := url.Values{"search_terms": {q.Term}, "geo_location_terms": {q.Location}}
		return "https://www.yellowpages.com/search?" + v.Encode()
	},
	Ready:   []string{"div.result", "div.search-results"},
	Anchor:  "div.result a.business-name",
	Card:    "div.result",
	MinName: 1,
	Fields: selector.Table{
		{Name: "phone", Chain: selector.C(".phones")},
		{Name: "street", Chain: selector.C(".street-address")},
		{Name: "locality", Chain: selector.C(".locality")},
		{Name: "category", Chain: selector.C(".categories a")},
		{Name: "website", Chain: selector.C("a.track-visit-website @href")},
		{Name: "reviews", Chain: selector.C(".ratings .count")},
	},
}

var Yelp = Site{
	Name: "yelp",
	Home: "https://www.yelp.com/",
	Search: func(q model.ScrapeQuery) string {
		v := url.Values{"find_desc": {q.Term}, "find_loc": {q.Location}}
		return "https://www.yelp.com/search?" + v.Encode()
	},
	Ready:   []string{`a[href*="/biz/"]`},
	Anchor:  `a[href*="/biz/"]`,
	Card:    "li, article, section",
	MinName: 3,
	Fields: selector.Table{
		{Name: "rating", Chain: selector.C(
			"[aria-label*='star rating'] @aria-label",
			"div[role='img'][aria-label*='star'] @aria-label",
			"[class*='rating'] @aria-label",
		)},
		{Name: "reviews", Chain: selector.C("span[class*='reviewCount']", "[class*='review']")},
		{Name: "address", Chain: selector.C("address", "[class*='address']", "[class*='location']")},
		{Name: "phone", Chain: selector.C("[class*='phone']")},
		{Name: "category", Chain: selector.C("[class*='category'] a", "[class*='priceCategory'] a")},
	},
}

// Bark lists service providers by name and profile link only.
var Bark = Site{
	Name: "bark",
	Search: func(q model.ScrapeQuery) string {
		v := url.Values{"q": {q.Term}, "l": {q.Location}}
		return "https://www.bark.com/en/pk/services/?" + v.Encode()
	},
	Ready:   []string{"a[href*='/en/company/']", "article", "li"},
	Anchor:  "a[href*='/en/company/']",
	MinName: 4,
}

// Sites lists every directory this package knows.
var Sites = []Site{YellowPages, Yelp, Bark}

type Adapter struct {
	site Site
	env  provider.Env
}

func New(site Site, env provider.Env) *Adapter {
	return &Adapter{site: site, env: env}
}

func (a *Adapter) Name() string { return a.site.Name }

// Collect scrolls the search results and turns every new card into a record.
// A blocked search is retried once with another agent, from the home page when
// the site has one.
func (a *Adapter) Collect(ctx context.Context, q model.ScrapeQuery) ([]model.BusinessRecord, error) {
	op := a.site.Name + ".collect"
	if err := q.Validate(); err != nil {
		return nil, errs.E(errs.Configuration, op, err)
	}
	if a.site.Search == nil || a.site.Anchor == "" {
		return nil, errs.Configf(op, "site %q has no search URL or anchor", a.site.Name)
	}
	log := a.env.Log(a.site.Name).WithField("query", q.SearchText())

	records, err := antibot.Guard(ctx, a.env.Controller(a.site.Name),
		func(ctx context.Context) ([]model.BusinessRecord, error) {
			return a.run(ctx, q, a.env.Options, "", log)
		},
		func(ctx context.Context) ([]model.BusinessRecord, error) {
			return a.run(ctx, q, a.env.AlternateOptions(), a.site.Home, log.WithField("attempt", "alternate"))
		},
	)
	if err != nil {
		return nil, err
	}

	for i := range records {
		if ctx.Err() != nil {
			break
		}
		a.env.Enrich(ctx, &records[i])
	}
	records = provider.Finish(a.env.Stats, q, records)
	log.WithField("records", len(records)).Info("directory collection finished")
	return records, nil
}

func (a *Adapter) run(ctx context.Context, q model.ScrapeQuery, opts browser.Options, home string, log logrus.FieldLogger) ([]model.BusinessRecord, error) {
	var records []model.BusinessRecord
	err := a.env.Browser.WithPage(ctx, opts, func(ctx context.Context, p browser.Page) error {
		if home != "" {
			if err := a.env.WarmUp(ctx, p, home); err != nil {
				return err
			}
		}
		if err := p.Navigate(ctx, a.site.Search(q)); err != nil {
			return err
		}

		found := make(map[string]model.BusinessRecord)
		list := collect.Scroll{
			Ready:        a.site.Ready,
			ReadyTimeout: a.env.Pacing.ReadyTimeout,
			Extract: func(doc *goquery.Document, pageURL string) []model.Candidate {
				return a.site.extract(doc, pageURL, found, log)
			},
			Check:     antibot.Check,
			Settle:    a.env.Pacing.Settle,
			MaxRounds: a.env.Pacing.MaxScrollRounds,
			Pacer:     a.env.NewPacer(),
			Logger:    log,
		}
		for c, err := range list.Collect(ctx, p, q, collect.NewSeen()) {
			if err != nil {
				return err
			}
			a.env.Stats.AddCandidate()
			if rec, ok := found[c.Key]; ok {
				records = append(records, rec)
			}
		}
		return nil
	})
	return records, err
}

// extract reads every listing card of doc. Records are stored in found under
// their candidate key; the first card seen for a key wins.
func (s Site) extract(doc *goquery.Document, pageURL string, found map[string]model.BusinessRecord, log logrus.FieldLogger) []model.Candidate {
	var out []model.Candidate
	doc.Find(s.Anchor).Each(func(_ int, link *goquery.Selection) {
		name := selector.Clean(link.Text())
		if len([]rune(name)) < max(s.MinName, 1) {
			return
		}
		href, _ := link.Attr("href")
		key := canonical(pageURL, href)
		if key == "" {
			return
		}
		if _, dup := found[key]; !dup {
			card := link
			if s.Card != "" {
				if c := link.Closest(s.Card); c.Length() > 0 {
					card = c
				}
			}
			found[key] = s.build(key, name, s.Fields.Extract(card, log.WithField("key", key)))
		}
		out = append(out, model.Candidate{Key: key, Preview: name})
	})
	return out
}

func (s Site) build(key, name string, v selector.Values) model.BusinessRecord {
	rec := model.BusinessRecord{
		Provider:    s.Name,
		SourceURL:   key,
		Name:        name,
		Phone:       v.Get("phone"),
		Category:    v.Get("category"),
		Rating:      detail.Rating(v.Get("rating")),
		ReviewCount: detail.Count(v.Get("reviews")),
	}
	rec.Address = v.Get("address")
	if rec.Address == "" {
		rec.Address = strings.TrimSpace(v.Get("street") + " " + v.Get("locality"))
	}
	if w := v.Get("website"); w != "" {
		rec.Website = contact.NormalizeWebsite(w)
	}
	return rec
}

// canonical resolves href and drops its tracking query.
func canonical(pageURL, href string) string {
	abs := provider.Absolute(pageURL, href)
	if abs == "" {
		return ""
	}
	u, err := url.Parse(abs)
	if err != nil {
		return abs
	}
	u.RawQuery = ""
	return u.String()
}
