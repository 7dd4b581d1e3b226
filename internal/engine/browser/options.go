package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/rendis/leadtap/internal/engine/useragent"
)

const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
)

// Viewport is the fixed window size reported to pages.
type Viewport struct {
	Width  int
	Height int
}

// Cookie is set on every page of a session before the first navigation.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Options describes how a session is launched and how its pages are set up.
type Options struct {
	Engine            string
	Headless          bool
	Bin               string // browser executable; empty lets the backend find or download one
	Viewport          Viewport
	UserAgent         string
	RandomAgent       bool
	Headers           map[string]string
	Cookies           []Cookie
	Evasion           bool
	NavigationTimeout time.Duration
}

// DefaultOptions is a headless desktop profile with evasion enabled.
func DefaultOptions() Options {
	return Options{
		Engine:            EngineRod,
		Headless:          true,
		Viewport:          Viewport{Width: 1366, Height: 768},
		RandomAgent:       true,
		Evasion:           true,
		NavigationTimeout: 30 * time.Second,
	}
}

// Agent returns the user agent pages should present. With RandomAgent and no
// fixed agent, a new one is picked on every call.
func (o Options) Agent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	if o.RandomAgent {
		return useragent.Random()
	}
	return useragent.All()[0]
}

// WithAgent returns a copy of o presenting ua.
func (o Options) WithAgent(ua string) Options {
	o.UserAgent = ua
	o.RandomAgent = false
	return o
}

// WithCookies returns a copy of o with cookies appended.
func (o Options) WithCookies(cookies ...Cookie) Options {
	o.Cookies = append(append([]Cookie(nil), o.Cookies...), cookies...)
	return o
}

func (o Options) viewport() Viewport {
	v := o.Viewport
	if v.Width <= 0 {
		v.Width = 1366
	}
	if v.Height <= 0 {
		v.Height = 768
	}
	return v
}

// Validate checks the engine name.
func (o Options) Validate() error {
	switch strings.ToLower(o.Engine) {
	case "", EngineRod, EngineChromedp:
		return nil
	default:
		return fmt.Errorf("unknown browser engine %q", o.Engine)
	}
}
