package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// Field names one target value and the chain that locates it.
type Field struct {
	Name  string
	Chain Chain
	Multi bool // collect every match of the winning locator
}

// Table is a provider's locator data: the fields it knows how to read.
type Table []Field

// Values holds what a Table resolved. Absent fields have no key.
type Values map[string][]string

// Get returns the first value of name, or "".
func (v Values) Get(name string) string {
	if vals := v[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Has reports whether name resolved to something.
func (v Values) Has(name string) bool {
	return len(v[name]) > 0
}

// Extract resolves every field of t under root.
func (t Table) Extract(root *goquery.Selection, logger logrus.FieldLogger) Values {
	out := make(Values, len(t))
	for _, f := range t {
		if f.Multi {
			if vals := ResolveAll(root, f.Name, f.Chain, logger); len(vals) > 0 {
				out[f.Name] = vals
			}
			continue
		}
		if v, ok := Resolve(root, f.Name, f.Chain, logger); ok {
			out[f.Name] = []string{v}
		}
	}
	return out
}

// Lookup returns the field called name.
func (t Table) Lookup(name string) (Field, bool) {
	for _, f := range t {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Document parses an HTML snapshot for resolution.
func Document(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
