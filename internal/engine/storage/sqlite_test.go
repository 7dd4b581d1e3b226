package storage

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rendis/leadtap/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestInsertRecordsDeduplicates(t *testing.T) {
	s := newTestStore(t)
	recs := []model.BusinessRecord{
		{Provider: "maps", SourceURL: "https://maps.example/place/a", Name: "Alpha"},
		{Provider: "maps", SourceURL: "https://maps.example/place/a", Name: "Alpha again"},
		{Provider: "reviews", SourceURL: "https://maps.example/place/a", Name: "Alpha"},
		{Provider: "directory", Name: "Beta", Address: "1 Main St"},
		{Provider: "directory", Name: "beta ", Address: "1 main st"},
	}
	n, err := s.InsertRecords(recs)
	if err != nil {
		t.Fatalf("InsertRecords: %v", err)
	}
	if n != 3 {
		t.Fatalf("inserted = %d, want 3", n)
	}
	if count, _ := s.Count(); count != 3 {
		t.Fatalf("Count = %d", count)
	}

	// A second run over the same data adds nothing.
	if n, _ := s.InsertRecords(recs); n != 0 {
		t.Fatalf("re-insert added %d rows", n)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	in := model.BusinessRecord{
		Provider:     "maps",
		SourceURL:    "https://maps.example/place/cafe",
		Name:         "Cafe",
		Address:      "1 Main St",
		Phone:        "+1 212-555-0100",
		Website:      "https://cafe.example",
		Rating:       ptr(4.5),
		ReviewCount:  ptr(120),
		Category:     "Coffee shop",
		Coordinates:  &model.Coordinates{Lat: 40.71, Lng: -74.0},
		OpeningHours: []string{"Mon 7-18", "Tue 7-18"},
		Contacts:     &model.ContactInfo{Emails: []string{"hi@cafe.example"}, Phones: []string{"212-555-0100"}},
		Query:        "coffee shop in New York",
	}
	bare := model.BusinessRecord{Provider: "directory", Name: "Bare"}
	if _, err := s.InsertRecords([]model.BusinessRecord{in, bare}); err != nil {
		t.Fatalf("InsertRecords: %v", err)
	}

	out, err := s.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if !reflect.DeepEqual(out[1], in) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out[1], in)
	}
	if out[0].Rating != nil || out[0].Coordinates != nil || out[0].Contacts != nil {
		t.Fatalf("absent fields came back set: %+v", out[0])
	}
}

func TestProfiles(t *testing.T) {
	s := newTestStore(t)
	ps := []model.Profile{
		{Name: "Ada", Title: "CTO", Location: "London", ProfileURL: "https://www.linkedin.com/in/ada"},
		{Name: "Ada", Title: "CTO", Location: "London", ProfileURL: "https://www.linkedin.com/in/ada"},
		{Name: "Grace", ProfileURL: "https://www.linkedin.com/in/grace"},
	}
	n, err := s.InsertProfiles(ps)
	if err != nil || n != 2 {
		t.Fatalf("InsertProfiles = %d, %v", n, err)
	}
	out, err := s.Profiles()
	if err != nil || len(out) != 2 || out[0] != ps[0] {
		t.Fatalf("Profiles = %+v, %v", out, err)
	}
	if c, _ := s.CountProfiles(); c != 2 {
		t.Fatalf("CountProfiles = %d", c)
	}
	if s.RunID() == "" {
		t.Fatalf("empty run id")
	}
}
