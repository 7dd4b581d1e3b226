package reviews

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/browser/browsertest"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/provider"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func bizURL(slug string) string { return "https://www.trustpilot.com/review/" + slug }

func searchPage(next string, slugs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Search results</title></head><body><main>`)
	for _, s := range slugs {
		fmt.Fprintf(&b, `<a name="business-unit-card" href="/review/%s?utm=search">%s</a>`, s, s)
	}
	b.WriteString(next)
	b.WriteString(`</main></body></html>`)
	return b.String()
}

const (
	nextEnabled  = `<a name="pagination-button-next" href="?page=2">Next</a>`
	nextDisabled = `<a name="pagination-button-next" aria-disabled="true">Next</a>`
)

func bizPage(name, slug string) string {
	return fmt.Sprintf(`<html><head><title>%[1]s Reviews</title></head><body>
<h1><span class="title_displayName">%[1]s</span></h1>
<p data-rating-typography="true">4.3</p>
<span data-reviews-count-typography="true">1,024 total</span>
<a href="/categories/bakery" data-service-category="true">Bakery</a>
<ul class="styles_itemsColumn__N6BEW">
  <li><a href="https://%[2]s.example/">%[2]s.example</a></li>
  <li><a href="tel:+44 20 7946 0958">Call</a></li>
  <li><a href="mailto:Hello@%[2]s.example">Email</a></li>
  <li><p>10 Downing Street, London</p></li>
</ul>
<a href="https://www.trustpilot.com/about">About</a>
</body></html>`, name, slug)
}

func newEnv(site *browsertest.Site, workers int) (provider.Env, *browsertest.Launcher) {
	l := &browsertest.Launcher{Site: site}
	pacing := provider.Pacing{DetailWorkers: workers}
	return provider.Env{
		Browser: browser.NewManagerWith(l.Launch, quietLogger()),
		Options: browser.DefaultOptions(),
		Pacing:  pacing,
		Stats:   &model.Stats{},
		Logger:  quietLogger(),
	}, l
}

func TestURLsWalksPagesWithDedup(t *testing.T) {
	q := model.ScrapeQuery{Term: "bakery", Location: "London", PageRange: model.PageRange{From: 1, To: 3}}
	site := browsertest.NewSite().
		Add(SearchURL(q, 1), searchPage(nextEnabled, "a.example", "b.example")).
		Add(SearchURL(q, 2), searchPage(nextDisabled, "b.example", "c.example"))
	env, l := newEnv(site, 1)

	urls, err := New(env).URLs(context.Background(), q)
	if err != nil {
		t.Fatalf("URLs: %v", err)
	}
	want := []string{bizURL("a.example"), bizURL("b.example"), bizURL("c.example")}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Fatalf("urls = %v, want %v", urls, want)
	}
	for _, nav := range site.Navigations() {
		if nav == SearchURL(q, 3) {
			t.Fatalf("walked past the last page")
		}
	}
	if !l.AllClosed() {
		t.Fatalf("session left open")
	}
}

func TestURLsFirstPageFailure(t *testing.T) {
	q := model.ScrapeQuery{Term: "bakery"}
	env, _ := newEnv(browsertest.NewSite(), 1)
	if _, err := New(env).URLs(context.Background(), q); err == nil {
		t.Fatalf("expected first page navigation error")
	}
}

func TestURLsFallsBackToReviewLinks(t *testing.T) {
	q := model.ScrapeQuery{Term: "bakery"}
	site := browsertest.NewSite().Add(SearchURL(q, 1),
		`<html><body><a href="/review/x.example">X</a><a href="/review/x.example">X again</a></body></html>`)
	env, _ := newEnv(site, 1)

	urls, err := New(env).URLs(context.Background(), q)
	if err != nil || len(urls) != 1 || urls[0] != bizURL("x.example") {
		t.Fatalf("urls = %v, err = %v", urls, err)
	}
}

func TestDetailsKeepOrderAcrossWorkers(t *testing.T) {
	site := browsertest.NewSite()
	var urls []string
	for i := 0; i < 6; i++ {
		slug := fmt.Sprintf("shop%d", i)
		urls = append(urls, bizURL(slug))
		if i == 3 {
			site.Fail(bizURL(slug), fmt.Errorf("timeout"))
			continue
		}
		site.Add(bizURL(slug), bizPage(fmt.Sprintf("Shop %d", i), slug))
	}
	urls = append(urls, "not-a-url")
	env, l := newEnv(site, 3)

	records, err := New(env).Details(context.Background(), urls)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	var names []string
	for _, r := range records {
		names = append(names, r.Name)
	}
	if got := strings.Join(names, ","); got != "Shop 0,Shop 1,Shop 2,Shop 4,Shop 5" {
		t.Fatalf("names = %s", got)
	}
	if len(l.Sessions()) != 3 || !l.AllClosed() {
		t.Fatalf("sessions = %d, all closed = %v", len(l.Sessions()), l.AllClosed())
	}
	if env.Stats.Skipped.Load() != 2 {
		t.Fatalf("skipped = %d", env.Stats.Skipped.Load())
	}

	r := records[0]
	if r.Website != "https://shop0.example/" || r.Phone != "+44 20 7946 0958" || r.Address != "10 Downing Street, London" {
		t.Fatalf("record = %+v", r)
	}
	if r.Category != "Bakery" || r.Rating == nil || *r.Rating != 4.3 || r.ReviewCount == nil || *r.ReviewCount != 1024 {
		t.Fatalf("record = %+v", r)
	}
	if r.Contacts == nil || len(r.Contacts.Emails) != 1 || r.Contacts.Emails[0] != "hello@shop0.example" {
		t.Fatalf("contacts = %+v", r.Contacts)
	}
}

func TestCollectRunsBothPhases(t *testing.T) {
	q := model.ScrapeQuery{Term: "bakery", Limit: 1}
	site := browsertest.NewSite().
		Add(SearchURL(q, 1), searchPage(nextDisabled, "a.example", "b.example")).
		Add(bizURL("a.example"), bizPage("A Bakery", "a"))
	env, _ := newEnv(site, 2)

	records, err := New(env).Collect(context.Background(), q)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 1 || records[0].Name != "A Bakery" || records[0].Query != "bakery" {
		t.Fatalf("records = %+v", records)
	}
}

func TestBuildWebsiteFallback(t *testing.T) {
	doc, err := browser.Snap{HTML: `<html><body><h1>Solo</h1>
<a href="https://www.trustpilot.com/categories">c</a><a href="https://solo.example">site</a></body></html>`}.Doc()
	if err != nil {
		t.Fatal(err)
	}
	vals := Fields.Extract(doc.Selection, nil)
	rec, ok := build(model.Candidate{Key: bizURL("solo")}, vals, browser.Snap{})
	if !ok || rec.Website != "https://solo.example" || rec.Contacts != nil {
		t.Fatalf("record = %+v", rec)
	}
}
