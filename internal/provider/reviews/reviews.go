// Package reviews collects businesses from the review site in two phases:
// numbered search pages give detail URLs, detail pages give records.
package reviews

import (
	"context"
	"net/url"
	"strconv"
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

const Name = "reviews"

const (
	homeURL   = "https://www.trustpilot.com"
	searchURL = "https://www.trustpilot.com/search"

	cards     = `a[name="business-unit-card"]`
	reviewRef = `a[href^="/review/"]`
	nextPage  = `[name="pagination-button-next"]`
)

// Fields locates the values of a business page.
var Fields = selector.Table{
	{Name: "name", Chain: selector.C("h1 span[class*='displayName']", "h1")},
	{Name: "category", Chain: selector.C("[data-service-category]", "a[href^='/categories/']")},
	{Name: "location", Chain: selector.C("[data-location-name]", "address")},
	{Name: "rating", Chain: selector.C("[data-rating-typography]", "p[class*='trustScore']")},
	{Name: "reviews", Chain: selector.C("[data-reviews-count-typography]", "span[class*='reviewsAndRating']")},
	{Name: "contact_links", Multi: true, Chain: selector.C(
		"ul[class*='itemsColumn'] li a @href",
		"[data-business-unit-contact-info] a @href",
	)},
	{Name: "contact_address", Chain: selector.C(
		"ul[class*='itemsColumn'] li p",
		"[data-business-unit-contact-info] address",
	)},
	{Name: "links", Multi: true, Chain: selector.C("a[href^='http'] @href")},
}

// Adapter walks review-site search pages and visits each business page by
// direct URL, several at a time.
type Adapter struct {
	env provider.Env
}

func New(env provider.Env) *Adapter {
	return &Adapter{env: env}
}

func (a *Adapter) Name() string { return Name }

// SearchURL is the search page for q.
func SearchURL(q model.ScrapeQuery, page int) string {
	v := url.Values{"query": {q.Term}}
	if q.Location != "" {
		v.Set("location", q.Location)
	}
	v.Set("page", strconv.Itoa(page))
	return searchURL + "?" + v.Encode()
}

// Collect runs both phases.
func (a *Adapter) Collect(ctx context.Context, q model.ScrapeQuery) ([]model.BusinessRecord, error) {
	urls, err := a.URLs(ctx, q)
	if err != nil {
		return nil, err
	}
	records, err := a.Details(ctx, urls)
	if err != nil {
		return nil, err
	}
	return provider.Finish(a.env.Stats, q, records), nil
}

// URLs walks q.PageRange and returns the deduplicated business page URLs in
// discovery order. A blocked first page is retried once from the home page
// with another agent.
func (a *Adapter) URLs(ctx context.Context, q model.ScrapeQuery) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, errs.E(errs.Configuration, "reviews.urls", err)
	}
	log := a.env.Log(Name).WithField("query", q.SearchText())

	urls, err := antibot.Guard(ctx, a.env.Controller(Name),
		func(ctx context.Context) ([]string, error) {
			return a.walk(ctx, q, a.env.Options, "", log)
		},
		func(ctx context.Context) ([]string, error) {
			return a.walk(ctx, q, a.env.AlternateOptions(), homeURL, log.WithField("attempt", "alternate"))
		},
	)
	if err != nil {
		return nil, err
	}
	log.WithField("urls", len(urls)).Info("review search pages collected")
	return urls, nil
}

func (a *Adapter) walk(ctx context.Context, q model.ScrapeQuery, opts browser.Options, home string, log logrus.FieldLogger) ([]string, error) {
	var urls []string
	err := a.env.Browser.WithPage(ctx, opts, func(ctx context.Context, p browser.Page) error {
		if home != "" {
			if err := a.env.WarmUp(ctx, p, home); err != nil {
				return err
			}
		}
		pages := collect.Paged{
			URL:          func(n int) string { return SearchURL(q, n) },
			Ready:        []string{cards, reviewRef},
			ReadyTimeout: a.env.Pacing.ReadyTimeout,
			Extract:      extractCards,
			HasNext:      hasNext,
			Check:        antibot.Check,
			Pacer:        a.env.NewPacer(),
			Logger:       log,
		}
		for c, err := range pages.Collect(ctx, p, q, collect.NewSeen()) {
			if err != nil {
				return err
			}
			urls = append(urls, c.Key)
		}
		return nil
	})
	return urls, err
}

// Details visits every URL and returns the records in input order. Pages are
// spread over up to DetailWorkers sessions; URLs that fail are left out.
func (a *Adapter) Details(ctx context.Context, urls []string) ([]model.BusinessRecord, error) {
	log := a.env.Log(Name)
	cands := make([]model.Candidate, 0, len(urls))
	for _, u := range urls {
		if !strings.HasPrefix(u, "http") {
			log.WithField("url", u).Warn("invalid detail URL skipped")
			a.env.Stats.AddSkipped()
			continue
		}
		cands = append(cands, model.Candidate{Key: u})
	}

	engine := detail.Engine[model.BusinessRecord]{
		Spec: detail.Spec{
			Mode:         detail.Direct,
			Ready:        []string{"h1"},
			ReadyTimeout: a.env.Pacing.ReadyTimeout,
			Fields:       Fields,
			Check:        antibot.Check,
		},
		Build:  build,
		Enrich: a.env.Enrich,
		Stats:  a.env.Stats,
		Logger: log,
	}

	open := func(ctx context.Context) (browser.Page, func(), error) {
		s, err := a.env.Browser.Open(ctx, a.env.Options)
		if err != nil {
			return nil, nil, err
		}
		p, err := a.env.Browser.NewPage(ctx, s)
		if err != nil {
			s.Close()
			return nil, nil, err
		}
		return p, func() {
			p.Close()
			if err := s.Close(); err != nil {
				log.WithError(err).Warn("browser session close failed")
			}
		}, nil
	}

	records, err := engine.Parallel(ctx, open, cands, a.env.Pacing.DetailWorkers)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"urls": len(urls), "records": len(records)}).Info("review details collected")
	return records, nil
}

func extractCards(doc *goquery.Document, pageURL string) []model.Candidate {
	links := doc.Find(cards)
	if links.Length() == 0 {
		links = doc.Find(reviewRef)
	}
	var out []model.Candidate
	links.Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		key := provider.Absolute(pageURL, href)
		if key == "" {
			return
		}
		if u, err := url.Parse(key); err == nil {
			u.RawQuery = ""
			key = u.String()
		}
		out = append(out, model.Candidate{Key: key, Preview: selector.Clean(s.Text())})
	})
	return out
}

func hasNext(doc *goquery.Document) bool {
	next := doc.Find(nextPage).First()
	if next.Length() == 0 {
		return false
	}
	if _, disabled := next.Attr("disabled"); disabled {
		return false
	}
	return next.AttrOr("aria-disabled", "false") != "true"
}

func build(c model.Candidate, v selector.Values, _ browser.Snap) (model.BusinessRecord, bool) {
	name := v.Get("name")
	if name == "" {
		return model.BusinessRecord{}, false
	}
	rec := model.BusinessRecord{
		Provider:    Name,
		SourceURL:   c.Key,
		Name:        name,
		Category:    v.Get("category"),
		Address:     v.Get("contact_address"),
		Rating:      detail.Rating(v.Get("rating")),
		ReviewCount: detail.Count(v.Get("reviews")),
	}
	if rec.Address == "" {
		rec.Address = v.Get("location")
	}

	var emails []string
	for _, href := range v["contact_links"] {
		switch {
		case strings.HasPrefix(href, "tel:"):
			if rec.Phone == "" {
				rec.Phone = strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
			}
		case strings.HasPrefix(href, "mailto:"):
			emails = append(emails, contact.Emails(strings.TrimPrefix(href, "mailto:"))...)
		case strings.HasPrefix(href, "http") && rec.Website == "":
			if external(href) {
				rec.Website = href
			}
		}
	}
	if rec.Website == "" {
		for _, href := range v["links"] {
			if external(href) {
				rec.Website = href
				break
			}
		}
	}
	if rec.Website != "" {
		rec.Website = contact.NormalizeWebsite(rec.Website)
	}

	if len(emails) > 0 || rec.Phone != "" {
		info := model.ContactInfo{Emails: emails}
		if rec.Phone != "" {
			info.Phones = []string{rec.Phone}
		}
		rec.Contacts = &info
	}
	return rec, true
}

func external(href string) bool {
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}
	return !strings.HasSuffix(strings.ToLower(u.Hostname()), "trustpilot.com")
}
