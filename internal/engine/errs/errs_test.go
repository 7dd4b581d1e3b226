package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := Nav("open list", "https://example.com/search", context.DeadlineExceeded)
	wrapped := fmt.Errorf("maps: %w", base)

	if got := KindOf(wrapped); got != Navigation {
		t.Fatalf("KindOf = %v, want %v", got, Navigation)
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Fatalf("expected deadline to stay in the chain")
	}
	if Fatal(wrapped) {
		t.Fatalf("navigation errors are recoverable")
	}
}

func TestFatalKinds(t *testing.T) {
	cases := map[Kind]bool{
		Configuration:     true,
		SessionLaunch:     true,
		InvalidCredential: true,
		Navigation:        false,
		Blocked:           false,
		Other:             false,
	}
	for kind, want := range cases {
		if got := Fatal(E(kind, "op", nil)); got != want {
			t.Errorf("Fatal(%v) = %v, want %v", kind, got, want)
		}
	}
	if Fatal(errors.New("plain")) {
		t.Errorf("plain errors are not fatal")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Configf("people", "cookie %s missing", "li_at")
	if got, want := err.Error(), "people: configuration_error: cookie li_at missing"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
