// Package collect walks provider result lists and yields deduplicated candidates.
package collect

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Seen is the set of candidate keys one collection operation has already produced.
// It belongs to that operation and is not safe for concurrent use.
type Seen struct {
	keys map[string]struct{}
}

func NewSeen() *Seen {
	return &Seen{keys: make(map[string]struct{})}
}

// Add records key and reports whether it was new. Empty keys are never new.
func (s *Seen) Add(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *Seen) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

func (s *Seen) Len() int { return len(s.keys) }

func orDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	d := logrus.New()
	d.SetOutput(io.Discard)
	return d
}
