package detail

import "testing"

func TestRating(t *testing.T) {
	cases := map[string]float64{
		"4.5 stars":          4.5,
		"Rated 4,2 out of 5": 4.2,
		"5":                  5,
	}
	for in, want := range cases {
		got := Rating(in)
		if got == nil || *got != want {
			t.Errorf("Rating(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "no rating", "12 stars"} {
		if got := Rating(in); got != nil {
			t.Errorf("Rating(%q) = %v, want nil", in, *got)
		}
	}
}

func TestCount(t *testing.T) {
	cases := map[string]int{
		"1,234 reviews": 1234,
		"(87)":          87,
		"1.2K reviews":  1200,
		"3 reviews":     3,
	}
	for in, want := range cases {
		got := Count(in)
		if got == nil || *got != want {
			t.Errorf("Count(%q) = %v, want %d", in, got, want)
		}
	}
	if got := Count("no reviews yet"); got != nil {
		t.Errorf("Count without digits = %d", *got)
	}
}

func TestCoordinates(t *testing.T) {
	pin := "https://www.google.com/maps/place/Cafe/@40.7,-74.0,17z/data=!3m1!4b1!4m6!3m5!3d40.7127753!4d-74.0059728!16s"
	got := Coordinates(pin)
	if got == nil || got.Lat != 40.7127753 || got.Lng != -74.0059728 {
		t.Fatalf("pin coordinates = %+v", got)
	}

	viewport := "https://www.google.com/maps/place/Cafe/@51.5072,-0.1276,15z"
	got = Coordinates(viewport)
	if got == nil || got.Lat != 51.5072 || got.Lng != -0.1276 {
		t.Fatalf("viewport coordinates = %+v", got)
	}

	if Coordinates("https://www.google.com/maps/search/cafe") != nil {
		t.Fatalf("expected nil without coordinates")
	}
	if Coordinates("https://x.example/@95.0,10.0") != nil {
		t.Fatalf("expected nil for out-of-range latitude")
	}
}

func TestStripLabel(t *testing.T) {
	if got := StripLabel("Address: 1 Main St"); got != "1 Main St" {
		t.Errorf("got %q", got)
	}
	if got := StripLabel("(212) 555-0100"); got != "(212) 555-0100" {
		t.Errorf("got %q", got)
	}
}
