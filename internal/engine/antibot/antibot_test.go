package antibot

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/model"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name              string
		title, body, html string
		blocked           bool
	}{
		{"clean", "Plumbers in Austin", "Best plumbers, 4.5 stars", "<html></html>", false},
		{"title marker", "Access Denied", "", "", true},
		{"unusual traffic", "Google", "Our systems have detected unusual traffic from your computer network.", "", true},
		{"captcha body", "", "Please complete the CAPTCHA to continue", "", true},
		{"bot word", "", "Are you a bot? Hold on.", "", true},
		{"robot is not bot", "", "Robotics supply store, bottled water", "", false},
		{"challenge markup", "Just a moment...", "", `<form id="challenge-form" class="cf-browser-verification">`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Detect(tc.title, tc.body, tc.html)
			if v.Blocked != tc.blocked {
				t.Fatalf("Detect = %+v, want blocked=%v", v, tc.blocked)
			}
			if v.Blocked && v.Reason == "" {
				t.Fatalf("blocked verdict without reason")
			}
		})
	}
}

func TestInspectIgnoresScripts(t *testing.T) {
	snap := browser.Snap{
		URL:   "https://www.yelp.com/search",
		Title: "Top 10 Plumbers",
		HTML:  `<html><body><script>var captcha = false;</script><p>Great plumbers</p></body></html>`,
	}
	if v := Inspect(snap); v.Blocked {
		t.Fatalf("script content flagged: %+v", v)
	}
	if err := Check(snap); err != nil {
		t.Fatalf("Check = %v", err)
	}

	snap.Title = "Blocked"
	if err := Check(snap); !errs.Is(err, errs.Blocked) {
		t.Fatalf("Check = %v, want blocked", err)
	}
}

func blockedErr() error {
	return errs.E(errs.Blocked, "yelp.search", errors.New("title contains \"blocked\""))
}

func TestGuardReturnsAlternateResultOnBlock(t *testing.T) {
	logger, hook := test.NewNullLogger()
	stats := &model.Stats{}
	c := &Controller{Stats: stats, Logger: logger}

	primary := func(context.Context) ([]string, error) { return nil, blockedErr() }
	alternate := func(context.Context) ([]string, error) { return []string{"alt-1", "alt-2"}, nil }

	got, err := Guard(context.Background(), c, primary, alternate)
	if err != nil {
		t.Fatalf("Guard: %v", err)
	}
	if len(got) != 2 || got[0] != "alt-1" {
		t.Fatalf("got %v, want alternate result", got)
	}
	if stats.Blocked.Load() != 1 {
		t.Fatalf("blocked = %d", stats.Blocked.Load())
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
		t.Fatalf("expected warning, got %+v", e)
	}
}

func TestGuardSkipsAlternateWhenNotBlocked(t *testing.T) {
	called := false
	primary := func(context.Context) ([]int, error) { return []int{1}, nil }
	alternate := func(context.Context) ([]int, error) { called = true; return nil, nil }

	got, err := Guard(context.Background(), &Controller{}, primary, alternate)
	if err != nil || len(got) != 1 || called {
		t.Fatalf("got %v, err %v, alternate called %v", got, err, called)
	}
}

func TestGuardPassesOtherErrors(t *testing.T) {
	navErr := errs.Nav("navigate", "https://x", errors.New("dns"))
	primary := func(context.Context) ([]int, error) { return nil, navErr }
	alternate := func(context.Context) ([]int, error) { t.Fatal("alternate must not run"); return nil, nil }

	if _, err := Guard(context.Background(), nil, primary, alternate); !errors.Is(err, navErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestGuardAlternateFailureIsEmptyResult(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stats := &model.Stats{}
	c := &Controller{Stats: stats, Logger: logger}
	primary := func(context.Context) ([]int, error) { return nil, blockedErr() }
	alternate := func(context.Context) ([]int, error) { return nil, blockedErr() }

	got, err := Guard(context.Background(), c, primary, alternate)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, err %v; want empty result and no error", got, err)
	}
	if stats.Blocked.Load() != 2 {
		t.Fatalf("blocked = %d, want 2", stats.Blocked.Load())
	}
}

func TestGuardAlternateFatalErrorPropagates(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"login wall", errs.E(errs.InvalidCredential, "people.session", errors.New("authwall")), true},
		{"launch", errs.E(errs.SessionLaunch, "browser.open", errors.New("no chrome")), true},
		{"configuration", errs.Configf("people.collect", "session cookie is required"), true},
		{"navigation", errs.Nav("navigate", "https://x", errors.New("timeout")), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			c := &Controller{Stats: &model.Stats{}, Logger: logger}
			primary := func(context.Context) ([]int, error) { return nil, blockedErr() }
			alternate := func(context.Context) ([]int, error) { return nil, tc.err }

			got, err := Guard(context.Background(), c, primary, alternate)
			if len(got) != 0 {
				t.Fatalf("got %v, want no results", got)
			}
			if tc.fatal {
				if !errors.Is(err, tc.err) || errs.KindOf(err) != errs.KindOf(tc.err) {
					t.Fatalf("err = %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v, want none", err)
			}
		})
	}
}

func TestControllerWithoutLoggerDiscards(t *testing.T) {
	l, ok := (&Controller{}).logger().(*logrus.Logger)
	if !ok || l.Out != io.Discard {
		t.Fatalf("fallback logger = %#v, want one writing to io.Discard", l)
	}
}

func TestGuardCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := func(context.Context) ([]int, error) { cancel(); return nil, blockedErr() }
	alternate := func(context.Context) ([]int, error) { t.Fatal("alternate must not run"); return nil, nil }

	_, err := Guard(ctx, &Controller{Delay: time.Minute}, primary, alternate)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
}
