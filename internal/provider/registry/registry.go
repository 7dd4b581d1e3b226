// Package registry builds business collectors by provider name.
package registry

import (
	"slices"
	"strings"

	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/provider"
	"github.com/rendis/leadtap/internal/provider/directory"
	"github.com/rendis/leadtap/internal/provider/maps"
	"github.com/rendis/leadtap/internal/provider/reviews"
)

// Factory builds a collector running in env.
type Factory func(env provider.Env) provider.Collector

var factories = map[string]Factory{
	maps.Name:    func(env provider.Env) provider.Collector { return maps.New(env) },
	reviews.Name: func(env provider.Env) provider.Collector { return reviews.New(env) },
}

func init() {
	for _, site := range directory.Sites {
		factories[site.Name] = func(env provider.Env) provider.Collector { return directory.New(site, env) }
	}
}

// Names returns the registered provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// New returns the collector registered as name.
func New(name string, env provider.Env) (provider.Collector, error) {
	f, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errs.Configf("registry.new", "unknown provider %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return f(env), nil
}

// Parse resolves a comma-separated provider list, keeping the given order and
// dropping repeats.
func Parse(list string, env provider.Env) ([]provider.Collector, error) {
	var (
		out  []provider.Collector
		seen = make(map[string]bool)
	)
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		c, err := New(name, env)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errs.Configf("registry.parse", "no provider given (available: %s)", strings.Join(Names(), ", "))
	}
	return out, nil
}
