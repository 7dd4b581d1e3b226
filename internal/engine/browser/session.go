package browser

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/errs"
)

// Launcher starts one browser session.
type Launcher func(ctx context.Context, opts Options) (Session, error)

// Manager opens sessions on a backend and guarantees they are released.
// It keeps no session state: every operation owns the session it opens.
type Manager struct {
	launch Launcher
	logger logrus.FieldLogger
}

// NewManager returns a Manager for the backend named by engine.
func NewManager(engine string, logger logrus.FieldLogger) *Manager {
	launch := LaunchRod
	if strings.EqualFold(engine, EngineChromedp) {
		launch = LaunchChromedp
	}
	return NewManagerWith(launch, logger)
}

// NewManagerWith returns a Manager over a custom launcher.
func NewManagerWith(launch Launcher, logger logrus.FieldLogger) *Manager {
	return &Manager{launch: launch, logger: logger}
}

// Open launches a session. Launch failures are reported as errs.SessionLaunch.
func (m *Manager) Open(ctx context.Context, opts Options) (Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, errs.E(errs.Configuration, "browser.open", err)
	}
	s, err := m.launch(ctx, opts)
	if err != nil {
		return nil, errs.E(errs.SessionLaunch, "browser.open", err)
	}
	m.logger.WithFields(logrus.Fields{"engine": opts.Engine, "headless": opts.Headless}).Debug("browser session opened")
	return s, nil
}

// NewPage opens a tab in s.
func (m *Manager) NewPage(ctx context.Context, s Session) (Page, error) {
	p, err := s.NewPage(ctx)
	if err != nil {
		return nil, errs.E(errs.SessionLaunch, "browser.page", err)
	}
	return p, nil
}

// With opens a session, runs fn and closes the session on every exit path,
// including cancellation of ctx and panics in fn.
func (m *Manager) With(ctx context.Context, opts Options, fn func(ctx context.Context, s Session) error) error {
	s, err := m.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer m.close(s)
	return fn(ctx, s)
}

// WithPage is With plus one page, the common shape of a collection operation.
func (m *Manager) WithPage(ctx context.Context, opts Options, fn func(ctx context.Context, p Page) error) error {
	return m.With(ctx, opts, func(ctx context.Context, s Session) error {
		p, err := m.NewPage(ctx, s)
		if err != nil {
			return err
		}
		defer p.Close()
		return fn(ctx, p)
	})
}

func (m *Manager) close(s Session) {
	if err := s.Close(); err != nil {
		m.logger.WithError(err).Warn("browser session close failed")
		return
	}
	m.logger.Debug("browser session closed")
}
