package detail_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/browser/browsertest"
	"github.com/rendis/leadtap/internal/engine/detail"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/engine/selector"
	"github.com/rendis/leadtap/internal/model"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type place struct {
	Name    string
	Website string
	Email   string
}

func buildPlace(_ model.Candidate, v selector.Values, _ browser.Snap) (place, bool) {
	if v.Get("name") == "" {
		return place{}, false
	}
	return place{Name: v.Get("name"), Website: v.Get("website")}, true
}

var fields = selector.Table{
	{Name: "name", Chain: selector.C("h1.title", "h1")},
	{Name: "website", Chain: selector.C("a.site @href")},
}

func detailHTML(name string) string {
	return fmt.Sprintf(`<html><body><h1>%s</h1><a class="site" href="https://%s.example">web</a></body></html>`, name, name)
}

func seqOf(keys ...string) func(func(model.Candidate, error) bool) {
	return func(yield func(model.Candidate, error) bool) {
		for _, k := range keys {
			if !yield(model.Candidate{Key: k}, nil) {
				return
			}
		}
	}
}

func names(t *testing.T, seq func(func(place, error) bool)) ([]string, error) {
	t.Helper()
	var out []string
	for p, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, p.Name)
	}
	return out, nil
}

func TestRunDirectSkipsBadCandidates(t *testing.T) {
	site := browsertest.NewSite().
		Add("https://d.example/1", detailHTML("one")).
		Add("https://d.example/2", `<html><body><h1>  </h1></body></html>`).
		Fail("https://d.example/3", errors.New("timeout")).
		Add("https://d.example/4", detailHTML("four"))

	stats := &model.Stats{}
	e := &detail.Engine[place]{
		Spec:   detail.Spec{Mode: detail.Direct, Ready: []string{"h1"}, Fields: fields},
		Build:  buildPlace,
		Stats:  stats,
		Logger: quietLogger(),
	}
	got, err := names(t, e.Run(context.Background(), site.NewPage(), seqOf(
		"https://d.example/1", "https://d.example/2", "https://d.example/3", "https://d.example/4")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"one", "four"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if stats.Skipped.Load() != 2 || stats.Candidates.Load() != 4 {
		t.Fatalf("skipped = %d, candidates = %d", stats.Skipped.Load(), stats.Candidates.Load())
	}
}

func TestRunClickThroughRestoresList(t *testing.T) {
	list := `<html><body><div role="feed">
		<a class="hfpxzc" href="https://maps.example/place/a">A</a>
		<a class="hfpxzc" href="https://maps.example/place/b">B</a>
	</div></body></html>`
	site := browsertest.NewSite().
		Add("https://maps.example/search", list).
		Add("https://maps.example/place/a", detailHTML("alpha")).
		Add("https://maps.example/place/b", detailHTML("beta"))

	p := site.NewPage()
	ctx := context.Background()
	if err := p.Navigate(ctx, "https://maps.example/search"); err != nil {
		t.Fatal(err)
	}

	e := &detail.Engine[place]{
		Spec: detail.Spec{
			Mode:          detail.Click,
			ClickSelector: "div[role='feed'] a",
			Ready:         []string{"h1"},
			ListReady:     []string{"div[role='feed']"},
			Fields:        fields,
		},
		Build:  buildPlace,
		Logger: quietLogger(),
	}
	got, err := names(t, e.Run(ctx, p, seqOf(
		"https://maps.example/place/a", "https://maps.example/place/missing", "https://maps.example/place/b")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"alpha", "beta"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if p.URL() != "https://maps.example/search" {
		t.Fatalf("list view not restored, at %s", p.URL())
	}
}

func TestRunPropagatesCollectionError(t *testing.T) {
	site := browsertest.NewSite()
	collectErr := errs.Nav("navigate", "https://list.example", errors.New("dns"))
	cands := func(yield func(model.Candidate, error) bool) {
		yield(model.Candidate{}, collectErr)
	}
	e := &detail.Engine[place]{Spec: detail.Spec{Fields: fields}, Build: buildPlace}

	_, err := names(t, e.Run(context.Background(), site.NewPage(), cands))
	if !errors.Is(err, collectErr) {
		t.Fatalf("err = %v, want collection error", err)
	}
}

func TestRunStopsOnFatalError(t *testing.T) {
	site := browsertest.NewSite().
		Add("https://d.example/1", detailHTML("one")).
		Add("https://d.example/2", detailHTML("two"))
	e := &detail.Engine[place]{
		Spec: detail.Spec{
			Fields: fields,
			Check: func(browser.Snap) error {
				return errs.E(errs.InvalidCredential, "check", errors.New("authwall"))
			},
		},
		Build: buildPlace,
	}
	got, err := names(t, e.Run(context.Background(), site.NewPage(), seqOf("https://d.example/1", "https://d.example/2")))
	if !errs.Is(err, errs.InvalidCredential) || len(got) != 0 {
		t.Fatalf("got %v, err = %v", got, err)
	}
}

func TestEnrichRunsOnBuiltRecords(t *testing.T) {
	site := browsertest.NewSite().Add("https://d.example/1", detailHTML("one"))
	e := &detail.Engine[place]{
		Spec:  detail.Spec{Fields: fields},
		Build: buildPlace,
		Enrich: func(_ context.Context, p *place) {
			if p.Website != "" {
				p.Email = "info@one.example"
			}
		},
	}
	rec, err := e.Extract(context.Background(), site.NewPage(), model.Candidate{Key: "https://d.example/1"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Email != "info@one.example" || rec.Website != "https://one.example" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestParallelPreservesOrder(t *testing.T) {
	site := browsertest.NewSite()
	var cands []model.Candidate
	var want []string
	for i := 0; i < 12; i++ {
		u := fmt.Sprintf("https://d.example/%d", i)
		if i == 5 {
			site.Fail(u, errors.New("timeout"))
		} else {
			site.Add(u, detailHTML(fmt.Sprintf("n%d", i)))
			want = append(want, fmt.Sprintf("n%d", i))
		}
		cands = append(cands, model.Candidate{Key: u})
	}

	opened, released := 0, 0
	open := func(context.Context) (browser.Page, func(), error) {
		opened++
		return site.NewPage(), func() { released++ }, nil
	}
	e := &detail.Engine[place]{Spec: detail.Spec{Fields: fields}, Build: buildPlace, Logger: quietLogger()}

	recs, err := e.Parallel(context.Background(), open, cands, 4)
	if err != nil {
		t.Fatalf("Parallel: %v", err)
	}
	var got []string
	for _, r := range recs {
		got = append(got, r.Name)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if opened != 4 || released != 4 {
		t.Fatalf("opened = %d, released = %d", opened, released)
	}
}

func TestParallelAllPagesUnavailable(t *testing.T) {
	launchErr := errs.E(errs.SessionLaunch, "browser.open", errors.New("no chromium"))
	open := func(context.Context) (browser.Page, func(), error) { return nil, nil, launchErr }
	e := &detail.Engine[place]{Spec: detail.Spec{Fields: fields}, Build: buildPlace, Logger: quietLogger()}

	_, err := e.Parallel(context.Background(), open, []model.Candidate{{Key: "https://d.example/1"}}, 2)
	if !errs.Is(err, errs.SessionLaunch) {
		t.Fatalf("err = %v, want session launch error", err)
	}
}
