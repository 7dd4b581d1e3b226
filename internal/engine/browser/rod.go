package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/rendis/leadtap/internal/engine/errs"
)

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     Options
}

// LaunchRod starts a local Chromium through go-rod.
// The browser connection is not bound to ctx so the session can be closed after ctx ends.
func LaunchRod(ctx context.Context, opts Options) (Session, error) {
	vp := opts.viewport()
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("window-size", fmt.Sprintf("%d,%d", vp.Width, vp.Height))
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	type launched struct {
		url string
		err error
	}
	done := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		done <- launched{u, err}
	}()

	var u string
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("launch chromium: %w", r.err)
		}
		u = r.url
	case <-ctx.Done():
		l.Kill()
		return nil, ctx.Err()
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect chromium: %w", err)
	}
	return &rodSession{browser: b, launcher: l, opts: opts}, nil
}

func (s *rodSession) NewPage(ctx context.Context) (Page, error) {
	p, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := s.setup(p.Context(ctx)); err != nil {
		_ = p.Close()
		return nil, err
	}
	return &rodPage{page: p, opts: s.opts}, nil
}

func (s *rodSession) setup(p *rod.Page) error {
	if s.opts.Evasion {
		if _, err := p.EvalOnNewDocument(EvasionScript); err != nil {
			return fmt.Errorf("install evasion: %w", err)
		}
	}
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.opts.Agent(),
		AcceptLanguage: acceptLanguage,
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	vp := s.opts.viewport()
	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if len(s.opts.Headers) > 0 {
		dict := make([]string, 0, 2*len(s.opts.Headers))
		for k, v := range s.opts.Headers {
			dict = append(dict, k, v)
		}
		if _, err := p.SetExtraHeaders(dict); err != nil {
			return fmt.Errorf("set headers: %w", err)
		}
	}
	if len(s.opts.Cookies) > 0 {
		params := make([]*proto.NetworkCookieParam, 0, len(s.opts.Cookies))
		for _, c := range s.opts.Cookies {
			params = append(params, &proto.NetworkCookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     cookiePath(c.Path),
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
		if err := p.SetCookies(params); err != nil {
			return fmt.Errorf("set cookies: %w", err)
		}
	}
	return nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}

type rodPage struct {
	page *rod.Page
	opts Options
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	if p.opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.NavigationTimeout)
		defer cancel()
	}
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return errs.Nav("navigate", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return errs.Nav("navigate", url, err)
	}
	return nil
}

func (p *rodPage) WaitFor(ctx context.Context, selectors ...string) (string, error) {
	return pollReady(ctx, p.Evaluate, selectors)
}

func (p *rodPage) Evaluate(ctx context.Context, js string, args ...any) ([]byte, error) {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("script returned no value")
	}
	return json.Marshal(res.Value.Val())
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

func cookiePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
