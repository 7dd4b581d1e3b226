// Package antibot spots block pages and retries blocked work through an alternate route.
package antibot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/errs"
)

var (
	textMarkers = []string{
		"blocked",
		"access denied",
		"unusual traffic",
		"captcha",
		"suspicious",
		"are you a robot",
		"verify you are human",
	}

	// "bot" only as a word: "robot", "bottle" and "abbot" are not block signals.
	botRe = regexp.MustCompile(`(?i)\bbots?\b`)

	documentMarkers = []string{
		"cf-browser-verification",
		"challenge-platform",
		"cf-challenge",
		"g-recaptcha",
		"px-captcha",
	}
)

// Verdict is the outcome of inspecting one page.
type Verdict struct {
	Blocked bool
	Reason  string
}

// Detect looks for block markers in the page title and visible text, and for
// verification-challenge markup in the raw document.
func Detect(title, body, html string) Verdict {
	for _, src := range []struct{ name, text string }{{"title", title}, {"body", body}} {
		lower := strings.ToLower(src.text)
		for _, m := range textMarkers {
			if strings.Contains(lower, m) {
				return Verdict{Blocked: true, Reason: fmt.Sprintf("%s contains %q", src.name, m)}
			}
		}
		if botRe.MatchString(src.text) {
			return Verdict{Blocked: true, Reason: fmt.Sprintf("%s mentions bots", src.name)}
		}
	}
	for _, m := range documentMarkers {
		if strings.Contains(html, m) {
			return Verdict{Blocked: true, Reason: fmt.Sprintf("document contains %q", m)}
		}
	}
	return Verdict{}
}

// Inspect runs Detect on a page snapshot.
func Inspect(snap browser.Snap) Verdict {
	body := ""
	if doc, err := snap.Doc(); err == nil {
		doc.Find("script, style, noscript").Remove()
		body = doc.Find("body").Text()
	}
	return Detect(snap.Title, body, snap.HTML)
}

// Check reports a blocked snapshot as an errs.Blocked error.
func Check(snap browser.Snap) error {
	if v := Inspect(snap); v.Blocked {
		return &errs.Error{Kind: errs.Blocked, Op: "antibot.check", URL: snap.URL, Err: errors.New(v.Reason)}
	}
	return nil
}
