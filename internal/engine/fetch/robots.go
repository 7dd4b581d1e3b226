package fetch

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// Robots answers allow/deny for a URL from the host's robots.txt.
// It is a pass/fail gate: fetch failures allow the URL.
type Robots struct {
	client *Client
	agent  string

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

func NewRobots(client *Client, agent string) *Robots {
	if agent == "" {
		agent = "*"
	}
	return &Robots{client: client, agent: agent, cache: make(map[string]*robotstxt.RobotsData)}
}

// Allowed reports whether rawURL may be fetched.
func (r *Robots) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	data := r.load(ctx, u)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, r.agent)
}

func (r *Robots) load(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host
	r.mu.Lock()
	data, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return data
	}

	resp, err := r.client.Get(ctx, key+"/robots.txt")
	switch {
	case err == nil:
		data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
		if err != nil {
			data = nil
		}
	default:
		// A missing robots.txt means no rules.
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			data, _ = robotstxt.FromStatusAndBytes(se.StatusCode, nil)
		}
	}
	if ctx.Err() != nil {
		return data
	}

	r.mu.Lock()
	r.cache[key] = data
	r.mu.Unlock()
	return data
}
