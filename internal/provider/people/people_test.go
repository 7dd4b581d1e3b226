package people

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/browser/browsertest"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/provider"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newEnv(site *browsertest.Site) (provider.Env, *browsertest.Launcher) {
	l := &browsertest.Launcher{Site: site}
	return provider.Env{
		Browser: browser.NewManagerWith(l.Launch, quietLogger()),
		Options: browser.DefaultOptions(),
		Stats:   &model.Stats{},
		Logger:  quietLogger(),
	}, l
}

func resultsPage(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Search | People</title></head><body><ul>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<li><a href="/in/%s?miniProfileUrn=urn%%3Ali">%s</a></li>`, id, id)
	}
	b.WriteString(`</ul><a href="/company/acme">Acme</a></body></html>`)
	return b.String()
}

func profilePage(name, title, location string) string {
	return fmt.Sprintf(`<html><head><title>%[1]s</title></head><body>
<section class="pv-top-card"><h1>%[1]s</h1>
<div class="text-body-medium break-words">%[2]s</div>
<span class="text-body-small inline">%[3]s</span></section></body></html>`, name, title, location)
}

func profileURL(id string) string { return "https://www.linkedin.com/in/" + id }

var query = model.PeopleQuery{Credential: `li_at=AQEDAT=x; JSESSIONID="ajax:123"`, Title: "CTO", Location: "Berlin", Limit: 3}

func TestParseCookies(t *testing.T) {
	got := ParseCookies(` li_at=AQEDAT=x; JSESSIONID="ajax:123" ;; =skip`)
	if len(got) != 2 {
		t.Fatalf("cookies = %+v", got)
	}
	if got[0].Name != "li_at" || got[0].Value != "AQEDAT=x" || got[0].Domain != "www.linkedin.com" || got[0].Path != "/" || !got[0].Secure {
		t.Fatalf("first cookie = %+v", got[0])
	}
	if got[1].Name != "JSESSIONID" || got[1].Value != "ajax:123" {
		t.Fatalf("second cookie = %+v", got[1])
	}
}

func TestSearchURL(t *testing.T) {
	if got := SearchURL(query); got != "https://www.linkedin.com/search/results/people/?keywords=CTO+Berlin" {
		t.Fatalf("SearchURL = %s", got)
	}
}

func TestCollectProfiles(t *testing.T) {
	site := browsertest.NewSite().
		AddScroll(SearchURL(query), resultsPage("ada", "grace"), resultsPage("ada", "grace", "linus", "ken")).
		Add(profileURL("ada"), profilePage("Ada Lovelace", "CTO at Engines", "Berlin, Germany")).
		Add(profileURL("grace"), profilePage("Grace Hopper", "CTO at Navy", "Berlin")).
		Add(profileURL("linus"), profilePage("Linus T", "CTO", "Berlin"))
	env, l := newEnv(site)

	profiles, err := New(env).Collect(context.Background(), query)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("profiles = %+v", profiles)
	}
	want := model.Profile{Name: "Ada Lovelace", Title: "CTO at Engines", Location: "Berlin, Germany", ProfileURL: profileURL("ada")}
	if profiles[0] != want {
		t.Fatalf("first = %+v, want %+v", profiles[0], want)
	}
	if profiles[2].ProfileURL != profileURL("linus") {
		t.Fatalf("third = %+v", profiles[2])
	}

	sessions := l.Sessions()
	if len(sessions) != 1 || !l.AllClosed() {
		t.Fatalf("sessions = %d, closed = %v", len(sessions), l.AllClosed())
	}
	if c := sessions[0].Opts.Cookies; len(c) != 2 || c[0].Name != "li_at" {
		t.Fatalf("session cookies = %+v", c)
	}
}

func TestCollectLoginWall(t *testing.T) {
	site := browsertest.NewSite().
		Redirect(SearchURL(query), "https://www.linkedin.com/login?session_redirect=x").
		Add("https://www.linkedin.com/login?session_redirect=x", `<html><body><form>Sign in</form></body></html>`)
	env, l := newEnv(site)

	profiles, err := New(env).Collect(context.Background(), query)
	if !errs.Is(err, errs.InvalidCredential) {
		t.Fatalf("err = %v, want invalid credential", err)
	}
	if profiles != nil {
		t.Fatalf("partial results returned: %+v", profiles)
	}
	if !l.AllClosed() {
		t.Fatalf("session left open")
	}
}

func TestCollectAuthwallOnProfile(t *testing.T) {
	site := browsertest.NewSite().
		Add(SearchURL(query), resultsPage("ada")).
		Redirect(profileURL("ada"), "https://www.linkedin.com/authwall?trk=x").
		Add("https://www.linkedin.com/authwall?trk=x", `<html><body><h1>Join now</h1></body></html>`)
	env, _ := newEnv(site)

	if _, err := New(env).Collect(context.Background(), query); !errs.Is(err, errs.InvalidCredential) {
		t.Fatalf("err = %v, want invalid credential", err)
	}
}

func TestCollectMissingCredential(t *testing.T) {
	env, l := newEnv(browsertest.NewSite())
	q := query
	q.Credential = "  "
	if _, err := New(env).Collect(context.Background(), q); !errs.Is(err, errs.Configuration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	if len(l.Sessions()) != 0 {
		t.Fatalf("browser launched without a credential")
	}
}

func TestWalled(t *testing.T) {
	cases := map[string]bool{
		"https://www.linkedin.com/login":               true,
		"https://www.linkedin.com/uas/login?x=1":       true,
		"https://www.linkedin.com/checkpoint/challenge": true,
		"https://www.linkedin.com/in/loginov":          false,
		"https://www.linkedin.com/search/results/people/?keywords=login": false,
	}
	for u, want := range cases {
		if got := walled(u); got != want {
			t.Errorf("walled(%q) = %v, want %v", u, got, want)
		}
	}
}
