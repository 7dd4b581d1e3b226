package contact

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/fetch"
	"github.com/rendis/leadtap/internal/model"
)

var (
	DefaultPaths = []string{"/contact", "/contact-us", "/about"}

	linkKeywords = []string{"contact", "kontakt", "about", "impressum", "über uns", "uber uns", "team"}
)

// FinderOptions tunes how much of a website is visited.
type FinderOptions struct {
	Paths         []string // tried after the homepage
	MaxPages      int
	RespectRobots bool
	MX            *MXChecker // nil skips MX validation
}

// Finder visits a business website and extracts contact details from its pages.
type Finder struct {
	client *fetch.Client
	robots *fetch.Robots
	opts   FinderOptions
	logger logrus.FieldLogger
}

func NewFinder(client *fetch.Client, opts FinderOptions, logger logrus.FieldLogger) *Finder {
	if opts.Paths == nil {
		opts.Paths = DefaultPaths
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = len(opts.Paths) + 3
	}
	f := &Finder{client: client, opts: opts, logger: logger}
	if opts.RespectRobots {
		f.robots = fetch.NewRobots(client, "leadtap")
	}
	return f
}

// Find returns the merged contact details of website's homepage and contact-like pages.
// An error is returned only when no page could be fetched at all.
func (f *Finder) Find(ctx context.Context, website string) (model.ContactInfo, error) {
	base := NormalizeWebsite(website)
	root, err := url.Parse(base)
	if err != nil || root.Host == "" {
		return model.ContactInfo{}, fmt.Errorf("invalid website %q", website)
	}

	queue := []string{root.String()}
	for _, p := range f.opts.Paths {
		queue = append(queue, resolve(root, p))
	}

	var (
		info    model.ContactInfo
		visited = make(map[string]bool)
		fetched int
		lastErr error
	)
	for i := 0; i < len(queue) && len(visited) < f.opts.MaxPages; i++ {
		if ctx.Err() != nil {
			break
		}
		target := queue[i]
		if visited[target] {
			continue
		}
		visited[target] = true

		if f.robots != nil && !f.robots.Allowed(ctx, target) {
			f.logger.WithField("url", target).Debug("disallowed by robots.txt")
			continue
		}

		resp, err := f.client.Get(ctx, target)
		if err != nil {
			lastErr = err
			f.logger.WithFields(logrus.Fields{"url": target, "error": err}).Debug("contact page fetch failed")
			continue
		}
		fetched++

		body := string(resp.Body)
		info = info.Merge(Extract(body))

		// The homepage tells us where the real contact pages live.
		if i == 0 {
			queue = append(queue, keywordLinks(root, body)...)
		}
	}

	if fetched == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no page fetched")
		}
		return model.ContactInfo{}, fmt.Errorf("website %s: %w", root.Host, lastErr)
	}

	if f.opts.MX != nil && len(info.Emails) > 0 {
		info.Emails = f.opts.MX.Filter(ctx, info.Emails)
	}
	return info, nil
}

// NormalizeWebsite unwraps redirector links and makes sure the URL has a scheme.
func NormalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && strings.HasSuffix(u.Hostname(), "google.com") && u.Path == "/url" {
		if target := u.Query().Get("q"); target != "" {
			raw = target
		} else if target := u.Query().Get("url"); target != "" {
			raw = target
		}
	}
	if !strings.HasPrefix(strings.ToLower(raw), "http://") && !strings.HasPrefix(strings.ToLower(raw), "https://") {
		raw = "https://" + strings.TrimLeft(raw, "/")
	}
	return raw
}

func keywordLinks(root *url.URL, body string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		combined := strings.ToLower(s.Text() + " " + href)
		if !hasKeyword(combined) {
			return
		}
		u, err := root.Parse(href)
		if err != nil || !strings.EqualFold(u.Hostname(), root.Hostname()) {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		out = append(out, u.String())
	})
	return out
}

func hasKeyword(s string) bool {
	for _, k := range linkKeywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func resolve(root *url.URL, path string) string {
	u, err := root.Parse(path)
	if err != nil {
		return root.String()
	}
	return u.String()
}
