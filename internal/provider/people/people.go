// Package people collects profiles from the professional network's people search
// using a caller-supplied session cookie.
package people

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/antibot"
	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/collect"
	"github.com/rendis/leadtap/internal/engine/detail"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/engine/selector"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/provider"
)

const Name = "people"

const (
	cookieDomain = "www.linkedin.com"
	homeURL      = "https://www.linkedin.com/feed/"
	searchURL    = "https://www.linkedin.com/search/results/people/"
	profileLinks = "a[href*='/in/']"
)

// A path segment named like one of these means the session cookie was not accepted.
var wallMarkers = []string{"login", "authwall", "checkpoint"}

var errLoginWall = errors.New("login required, session cookie invalid or expired")

// Fields locates the values of a profile page.
var Fields = selector.Table{
	{Name: "name", Chain: selector.C(".pv-top-card h1", "h1")},
	{Name: "title", Chain: selector.C(".text-body-medium.break-words", ".pv-text-details__left-panel span")},
	{Name: "location", Chain: selector.C(".pv-top-card--list-bullet li", ".text-body-small.inline")},
}

type Adapter struct {
	env provider.Env
}

func New(env provider.Env) *Adapter {
	return &Adapter{env: env}
}

func (a *Adapter) Name() string { return Name }

// SearchURL is the people search for q's title and location.
func SearchURL(q model.PeopleQuery) string {
	return searchURL + "?" + url.Values{"keywords": {keywords(q)}}.Encode()
}

func keywords(q model.PeopleQuery) string {
	return strings.TrimSpace(strings.TrimSpace(q.Title) + " " + strings.TrimSpace(q.Location))
}

// ParseCookies reads a "name=value; name2=value2" header into session cookies.
// Values may themselves contain '='.
func ParseCookies(raw string) []browser.Cookie {
	var out []browser.Cookie
	for _, pair := range strings.Split(raw, ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(pair), "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, browser.Cookie{
			Name:   name,
			Value:  strings.Trim(strings.TrimSpace(value), `"`),
			Domain: cookieDomain,
			Path:   "/",
			Secure: true,
		})
	}
	return out
}

// Collect returns up to q.Limit profiles. A missing credential fails before any
// navigation; a login wall fails the whole operation with errs.InvalidCredential.
func (a *Adapter) Collect(ctx context.Context, q model.PeopleQuery) ([]model.Profile, error) {
	if strings.TrimSpace(q.Credential) == "" {
		return nil, errs.Configf("people.collect", "session cookie is required")
	}
	cookies := ParseCookies(q.Credential)
	if len(cookies) == 0 {
		return nil, errs.Configf("people.collect", "session cookie has no name=value pairs")
	}
	if keywords(q) == "" {
		return nil, errs.Configf("people.collect", "title or location is required")
	}
	if q.Limit < 0 {
		return nil, errs.Configf("people.collect", "limit must be >= 0, got %d", q.Limit)
	}
	log := a.env.Log(Name).WithField("query", keywords(q))

	opts := a.env.Options.WithCookies(cookies...)
	profiles, err := antibot.Guard(ctx, a.env.Controller(Name),
		func(ctx context.Context) ([]model.Profile, error) {
			return a.run(ctx, q, opts, "", log)
		},
		func(ctx context.Context) ([]model.Profile, error) {
			alt := a.env.AlternateOptions().WithCookies(cookies...)
			return a.run(ctx, q, alt, homeURL, log.WithField("attempt", "alternate"))
		},
	)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(profiles) > q.Limit {
		profiles = profiles[:q.Limit]
	}
	a.env.Stats.AddFound(len(profiles))
	log.WithField("profiles", len(profiles)).Info("people collection finished")
	return profiles, nil
}

func (a *Adapter) run(ctx context.Context, q model.PeopleQuery, opts browser.Options, home string, log logrus.FieldLogger) ([]model.Profile, error) {
	pacing := a.env.Pacing
	var profiles []model.Profile
	err := a.env.Browser.With(ctx, opts, func(ctx context.Context, s browser.Session) error {
		list, err := a.env.Browser.NewPage(ctx, s)
		if err != nil {
			return err
		}
		defer list.Close()

		if home != "" {
			if err := a.env.WarmUp(ctx, list, home); err != nil {
				return err
			}
		}
		target := SearchURL(q)
		if err := list.Navigate(ctx, target); err != nil {
			return err
		}
		if err := browser.Sleep(ctx, pacing.Settle); err != nil {
			return err
		}
		snap, err := browser.Snapshot(ctx, list)
		if err != nil {
			return errs.Nav("snapshot", target, err)
		}
		if err := check(snap); err != nil {
			return err
		}

		profilePage, err := a.env.Browser.NewPage(ctx, s)
		if err != nil {
			return err
		}
		defer profilePage.Close()

		results := collect.Scroll{
			Extract:   extractProfiles,
			Check:     check,
			Settle:    pacing.Settle,
			MaxRounds: pacing.MaxScrollRounds,
			Pacer:     a.env.NewPacer(),
			Logger:    log,
		}
		engine := detail.Engine[model.Profile]{
			Spec: detail.Spec{
				Mode:         detail.Direct,
				Ready:        []string{"h1"},
				ReadyTimeout: pacing.ReadyTimeout,
				Fields:       Fields,
				Check:        check,
			},
			Build:  build,
			Stats:  a.env.Stats,
			Logger: log,
		}

		sq := model.ScrapeQuery{Term: keywords(q), Limit: q.Limit}
		for p, err := range engine.Run(ctx, profilePage, results.Collect(ctx, list, sq, collect.NewSeen())) {
			if err != nil {
				return err
			}
			profiles = append(profiles, p)
		}
		return nil
	})
	return profiles, err
}

// check fails with errs.InvalidCredential on a login wall, then looks for block pages.
func check(snap browser.Snap) error {
	if walled(snap.URL) {
		return &errs.Error{Kind: errs.InvalidCredential, Op: "people.session", URL: snap.URL, Err: errLoginWall}
	}
	return antibot.Check(snap)
}

func walled(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		for _, m := range wallMarkers {
			if seg == m {
				return true
			}
		}
	}
	return false
}

func extractProfiles(doc *goquery.Document, pageURL string) []model.Candidate {
	var out []model.Candidate
	doc.Find(profileLinks).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		key := provider.Absolute(pageURL, href)
		u, err := url.Parse(key)
		if err != nil || !strings.HasPrefix(u.Path, "/in/") {
			return
		}
		u.RawQuery = ""
		out = append(out, model.Candidate{Key: u.String(), Preview: selector.Clean(s.Text())})
	})
	return out
}

func build(c model.Candidate, v selector.Values, _ browser.Snap) (model.Profile, bool) {
	name := v.Get("name")
	if name == "" {
		return model.Profile{}, false
	}
	return model.Profile{
		Name:       name,
		Title:      v.Get("title"),
		Location:   v.Get("location"),
		ProfileURL: c.Key,
	}, true
}
