package antibot

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/model"
)

// Strategy is one way of running a navigation and extraction step.
type Strategy[T any] func(ctx context.Context) ([]T, error)

// Controller holds the fallback policy.
type Controller struct {
	Delay  time.Duration // pause before the alternate strategy
	Stats  *model.Stats
	Logger logrus.FieldLogger
}

// Guard runs primary. When primary reports a block, it waits Delay and runs
// alternate once. A failing or blocked alternate yields an empty result and no
// error, except for cancellation and fatal errors (configuration, launch,
// rejected credential), which are returned unchanged. Other primary errors are
// returned unchanged too.
func Guard[T any](ctx context.Context, c *Controller, primary, alternate Strategy[T]) ([]T, error) {
	if c == nil {
		c = &Controller{}
	}
	out, err := primary(ctx)
	if err == nil || !errs.Is(err, errs.Blocked) {
		return out, err
	}

	c.Stats.AddBlocked()
	c.logger().WithError(err).Warn("block detected, switching to alternate strategy")

	if err := browser.Sleep(ctx, c.Delay); err != nil {
		return nil, err
	}
	out, err = alternate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errs.Fatal(err) {
			return nil, err
		}
		if errs.Is(err, errs.Blocked) {
			c.Stats.AddBlocked()
		}
		c.logger().WithError(err).Warn("alternate strategy failed, returning no results")
		return nil, nil
	}
	return out, nil
}

func (c *Controller) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
