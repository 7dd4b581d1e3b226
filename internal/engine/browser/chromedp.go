package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/rendis/leadtap/internal/engine/errs"
)

type cdpSession struct {
	browserCtx  context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        Options
}

// LaunchChromedp starts a local Chrome through chromedp's exec allocator.
func LaunchChromedp(ctx context.Context, opts Options) (Session, error) {
	vp := opts.viewport()
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(vp.Width, vp.Height),
	)
	if opts.Bin != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.Bin))
	}

	// Detached from ctx: the process must outlive a cancelled operation until Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	s := &cdpSession{browserCtx: browserCtx, cancel: cancel, allocCancel: allocCancel, opts: opts}
	if err := start(ctx, browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return s, nil
}

// start performs the first Run on target itself. chromedp ties the lifetime of the
// browser or tab it allocates to the context of that first call.
func start(ctx, target context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes actions on target while honouring ctx, without tying target's lifetime to ctx.
func (s *cdpSession) run(ctx, target context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithCancel(target)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *cdpSession) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	p := &cdpPage{session: s, ctx: tabCtx, cancel: tabCancel}
	if err := start(ctx, tabCtx, s.setup()...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

func (s *cdpSession) setup() []chromedp.Action {
	vp := s.opts.viewport()
	actions := []chromedp.Action{network.Enable()}
	if s.opts.Evasion {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(EvasionScript).Do(ctx)
			return err
		}))
	}
	actions = append(actions,
		emulation.SetUserAgentOverride(s.opts.Agent()).WithAcceptLanguage(acceptLanguage),
		emulation.SetDeviceMetricsOverride(int64(vp.Width), int64(vp.Height), 1, false),
	)
	if len(s.opts.Headers) > 0 {
		h := make(network.Headers, len(s.opts.Headers))
		for k, v := range s.opts.Headers {
			h[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(h))
	}
	if len(s.opts.Cookies) > 0 {
		params := make([]*network.CookieParam, 0, len(s.opts.Cookies))
		for _, c := range s.opts.Cookies {
			params = append(params, &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     cookiePath(c.Path),
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
		actions = append(actions, network.SetCookies(params))
	}
	return actions
}

func (s *cdpSession) Close() error {
	err := chromedp.Cancel(s.browserCtx)
	s.cancel()
	s.allocCancel()
	return err
}

type cdpPage struct {
	session *cdpSession
	ctx     context.Context
	cancel  context.CancelFunc
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	if t := p.session.opts.NavigationTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	if err := p.session.run(ctx, p.ctx, chromedp.Navigate(url)); err != nil {
		return errs.Nav("navigate", url, err)
	}
	return nil
}

func (p *cdpPage) WaitFor(ctx context.Context, selectors ...string) (string, error) {
	return pollReady(ctx, p.Evaluate, selectors)
}

func (p *cdpPage) Evaluate(ctx context.Context, js string, args ...any) ([]byte, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode script arg %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	expr := fmt.Sprintf("(%s)(%s)", js, strings.Join(encoded, ", "))

	var raw []byte
	err := p.session.run(ctx, p.ctx, chromedp.Evaluate(expr, &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (p *cdpPage) Close() error {
	p.cancel()
	return nil
}
