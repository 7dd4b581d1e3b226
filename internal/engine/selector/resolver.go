// Package selector resolves field values from rendered HTML through ordered locator chains.
package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/sirupsen/logrus"
)

const xpathPrefix = "xpath:"

// Locator finds one element and reads its text or an attribute.
//
// The string form is a CSS selector, optionally followed by " @attr":
//
//	h1
//	a[data-item-id='authority'] @href
//	xpath://button[contains(@aria-label,'Phone')] @aria-label
type Locator struct {
	Expr  string
	Attr  string // empty reads the element text
	XPath bool
}

// Parse turns a locator string into a Locator.
func Parse(s string) Locator {
	s = strings.TrimSpace(s)
	var l Locator
	if strings.HasPrefix(s, xpathPrefix) {
		l.XPath = true
		s = strings.TrimSpace(strings.TrimPrefix(s, xpathPrefix))
	}
	if i := strings.LastIndex(s, " @"); i >= 0 && !strings.ContainsAny(s[i+2:], " []()'\"") {
		l.Attr = s[i+2:]
		s = strings.TrimSpace(s[:i])
	}
	l.Expr = s
	return l
}

func (l Locator) String() string {
	s := l.Expr
	if l.XPath {
		s = xpathPrefix + s
	}
	if l.Attr != "" {
		s += " @" + l.Attr
	}
	return s
}

// Chain is an ordered list of fallback locators, most stable first.
type Chain []Locator

// C builds a Chain from locator strings.
func C(exprs ...string) Chain {
	c := make(Chain, len(exprs))
	for i, e := range exprs {
		c[i] = Parse(e)
	}
	return c
}

// Resolve tries each locator of chain under root and returns the first non-empty value.
// A miss is not an error: it returns ("", false) and logs at debug level.
func Resolve(root *goquery.Selection, field string, chain Chain, logger logrus.FieldLogger) (string, bool) {
	for _, l := range chain {
		if vals := l.values(root, true); len(vals) > 0 {
			return vals[0], true
		}
	}
	if logger != nil {
		logger.WithField("field", field).Debug("selector chain matched nothing")
	}
	return "", false
}

// ResolveAll returns every non-empty value of the first locator in chain that matches anything.
func ResolveAll(root *goquery.Selection, field string, chain Chain, logger logrus.FieldLogger) []string {
	for _, l := range chain {
		if vals := l.values(root, false); len(vals) > 0 {
			return vals
		}
	}
	if logger != nil {
		logger.WithField("field", field).Debug("selector chain matched nothing")
	}
	return nil
}

func (l Locator) values(root *goquery.Selection, first bool) []string {
	if root == nil || l.Expr == "" {
		return nil
	}
	if l.XPath {
		return l.xpathValues(root, first)
	}

	var out []string
	sel := root.Find(l.Expr)
	// Find only searches descendants; let a locator match the root itself too.
	if root.Is(l.Expr) {
		sel = root.Filter(l.Expr).AddSelection(sel)
	}
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v := l.read(s); v != "" {
			out = append(out, v)
		}
		return !(first && len(out) > 0)
	})
	return out
}

func (l Locator) read(s *goquery.Selection) string {
	if l.Attr != "" {
		v, _ := s.Attr(l.Attr)
		return strings.TrimSpace(v)
	}
	return Clean(s.Text())
}

func (l Locator) xpathValues(root *goquery.Selection, first bool) []string {
	var out []string
	for _, n := range root.Nodes {
		nodes, err := htmlquery.QueryAll(n, l.Expr)
		if err != nil {
			return nil
		}
		for _, m := range nodes {
			var v string
			// "//a/@href" style expressions come back as nodes whose text is the attribute value.
			if l.Attr != "" {
				v = strings.TrimSpace(htmlquery.SelectAttr(m, l.Attr))
			} else {
				v = Clean(htmlquery.InnerText(m))
			}
			if v == "" {
				continue
			}
			out = append(out, v)
			if first {
				return out
			}
		}
	}
	return out
}

// Clean collapses runs of whitespace into single spaces.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
