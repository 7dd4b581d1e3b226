package selector

import (
	"reflect"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const page = `<html><body>
<div class="card">
  <h1 class="title">  Blue   Bottle Coffee </h1>
  <a data-item-id="authority" href="https://bluebottle.example/">site</a>
  <button aria-label="Phone: (212) 555-0100"></button>
  <ul class="hours"><li>Mon 7-18</li><li>Tue 7-18</li><li></li></ul>
  <span class="empty"></span>
</div>
</body></html>`

func mustDoc(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := Document(page)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Locator
	}{
		{"h1", Locator{Expr: "h1"}},
		{"a[data-item-id='authority'] @href", Locator{Expr: "a[data-item-id='authority']", Attr: "href"}},
		{"xpath://button[contains(@aria-label,'Phone')] @aria-label", Locator{Expr: "//button[contains(@aria-label,'Phone')]", Attr: "aria-label", XPath: true}},
		{"xpath://a[@href and @title]", Locator{Expr: "//a[@href and @title]", XPath: true}},
	}
	for _, tc := range cases {
		if got := Parse(tc.in); got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if got := Parse(tc.in).String(); got != tc.in {
			t.Errorf("String() = %q, want %q", got, tc.in)
		}
	}
}

func TestResolveFallsBackToSecondLocator(t *testing.T) {
	doc := mustDoc(t)
	chain := C("h2.missing", "h1.title", "h1")
	got, ok := Resolve(doc.Selection, "name", chain, nil)
	if !ok || got != "Blue Bottle Coffee" {
		t.Fatalf("Resolve = %q, %v; want L2 value", got, ok)
	}
}

func TestResolveSkipsEmptyMatches(t *testing.T) {
	doc := mustDoc(t)
	got, ok := Resolve(doc.Selection, "x", C("span.empty", "h1"), nil)
	if !ok || got != "Blue Bottle Coffee" {
		t.Fatalf("Resolve = %q, %v", got, ok)
	}
}

func TestResolveMissLogsDebug(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	doc := mustDoc(t)
	got, ok := Resolve(doc.Selection, "rating", C("span.rating", "div.stars"), logger)
	if ok || got != "" {
		t.Fatalf("Resolve = %q, %v; want miss", got, ok)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.DebugLevel || entry.Data["field"] != "rating" {
		t.Fatalf("expected debug entry for field rating, got %+v", entry)
	}
}

func TestResolveAttributeAndXPath(t *testing.T) {
	doc := mustDoc(t)

	site, ok := Resolve(doc.Selection, "website", C("a[data-item-id='authority'] @href"), nil)
	if !ok || site != "https://bluebottle.example/" {
		t.Errorf("website = %q, %v", site, ok)
	}

	phone, ok := Resolve(doc.Selection, "phone", C("xpath://button[starts-with(@aria-label,'Phone')] @aria-label"), nil)
	if !ok || phone != "Phone: (212) 555-0100" {
		t.Errorf("phone = %q, %v", phone, ok)
	}

	title, ok := Resolve(doc.Selection, "name", C("xpath://h1"), nil)
	if !ok || title != "Blue Bottle Coffee" {
		t.Errorf("xpath text = %q, %v", title, ok)
	}
}

func TestResolveMatchesRoot(t *testing.T) {
	doc := mustDoc(t)
	card := doc.Find("div.card")
	got, ok := Resolve(card, "kind", C("div.card @class"), nil)
	if !ok || got != "card" {
		t.Fatalf("Resolve on root = %q, %v", got, ok)
	}
}

func TestTableExtract(t *testing.T) {
	doc := mustDoc(t)
	table := Table{
		{Name: "name", Chain: C("h1")},
		{Name: "hours", Chain: C("table.hours tr", "ul.hours li"), Multi: true},
		{Name: "rating", Chain: C("span.rating")},
	}
	vals := table.Extract(doc.Selection, nil)

	if vals.Get("name") != "Blue Bottle Coffee" {
		t.Errorf("name = %q", vals.Get("name"))
	}
	if want := []string{"Mon 7-18", "Tue 7-18"}; !reflect.DeepEqual(vals["hours"], want) {
		t.Errorf("hours = %v, want %v", vals["hours"], want)
	}
	if vals.Has("rating") || vals.Get("rating") != "" {
		t.Errorf("rating should be absent, got %v", vals["rating"])
	}
	if _, ok := table.Lookup("hours"); !ok {
		t.Errorf("Lookup(hours) failed")
	}
}
