// Package useragent holds the desktop browser identities used for navigation and fetches.
package useragent

import "math/rand/v2"

var desktop = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// Random picks a desktop user agent.
func Random() string {
	return desktop[rand.IntN(len(desktop))]
}

// Other picks a desktop user agent different from current.
func Other(current string) string {
	for range 8 {
		if ua := Random(); ua != current {
			return ua
		}
	}
	for _, ua := range desktop {
		if ua != current {
			return ua
		}
	}
	return current
}

// All returns a copy of the pool.
func All() []string {
	return append([]string(nil), desktop...)
}
