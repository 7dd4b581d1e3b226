package registry

import (
	"reflect"
	"testing"

	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/provider"
)

func TestNames(t *testing.T) {
	want := []string{"bark", "maps", "reviews", "yellowpages", "yelp"}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		c, err := New(name, provider.Env{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if c.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, c.Name())
		}
	}
	if c, err := New(" Maps ", provider.Env{}); err != nil || c.Name() != "maps" {
		t.Errorf("New is not case-insensitive: %v", err)
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("craigslist", provider.Env{}); !errs.Is(err, errs.Configuration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("yelp, maps,yelp,,", provider.Env{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 || got[0].Name() != "yelp" || got[1].Name() != "maps" {
		t.Fatalf("Parse = %v", got)
	}
	if _, err := Parse(" , ", provider.Env{}); !errs.Is(err, errs.Configuration) {
		t.Fatalf("empty list err = %v", err)
	}
	if _, err := Parse("maps,nope", provider.Env{}); !errs.Is(err, errs.Configuration) {
		t.Fatalf("unknown err = %v", err)
	}
}
