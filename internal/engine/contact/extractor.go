// Package contact pulls emails, phone numbers and street addresses out of text and HTML,
// and hunts a business website for them.
package contact

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rendis/leadtap/internal/model"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)

	// Newlines and wide gaps separate blocks; a number never spans them.
	segmentRe = regexp.MustCompile(`\n|\s{2,}`)

	// One whitespace-separated piece of a phone number: "+44", "(512)", "555-0100".
	phoneWordRe = regexp.MustCompile(`^\+?[\d()-]+$`)

	// A US ZIP code in front of a number on the same line: "TX 78701 512-555-0100".
	zipRe = regexp.MustCompile(`^[1-9]\d{4}$`)

	// ISO dates have phone-like digit counts.
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	addressRe = regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z0-9 ,'-]{1,40}?\b(?:Street|St|Avenue|Ave|Road|Rd|Lane|Ln|Drive|Dr|Boulevard|Blvd|Way|Plaza|Square|Sq|Court|Ct)\b[^<\n]{0,60}`)

	// Image and asset names that look like addresses: logo@2x.png
	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}
)

// Extract finds contact details in input, which may be plain text or an HTML document.
// It never fails; unparseable input yields an empty ContactInfo.
func Extract(input string) model.ContactInfo {
	text := input
	var links []string
	if looksLikeHTML(input) {
		text, links = htmlText(input)
	}

	var info model.ContactInfo
	info.Emails = Emails(text + "\n" + strings.Join(links, "\n"))
	info.Phones = Phones(text + "\n" + strings.Join(links, "\n"))
	info.Address = Address(text)
	return info
}

// Emails returns lower-cased, de-duplicated email addresses in first-seen order.
func Emails(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range emailRe.FindAllString(text, -1) {
		e := sanitizeEmail(m)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// Phones returns de-duplicated phone numbers in first-seen order.
// Numbers are compared by their digits, so "555-123-4567" and "(555) 123 4567" are one entry.
// Pieces are joined with single spaces.
func Phones(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, seg := range segmentRe.Split(text, -1) {
		for _, run := range phoneRuns(seg) {
			for _, words := range splitRun(run) {
				parts := make([]string, len(words))
				for i, w := range words {
					parts[i] = w.text
				}
				token := strings.Join(parts, " ")
				key := normalizePhone(token)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, token)
			}
		}
	}
	return out
}

type phoneWord struct {
	text   string
	digits int
	opens  bool // "+", "(" or a label like "Tel:" in front starts a new number
	closes bool // trailing punctuation like "," ends the number
}

// phoneRuns splits seg into runs of adjacent phone-like words. Any other word
// (text, versions, percentages, dates) breaks the run.
func phoneRuns(seg string) [][]phoneWord {
	var runs [][]phoneWord
	var run []phoneWord
	flush := func() {
		if len(run) > 0 {
			runs = append(runs, run)
		}
		run = nil
	}
	for _, f := range strings.Fields(seg) {
		w, ok := parsePhoneWord(f)
		if !ok {
			flush()
			continue
		}
		// "+1 (512) ..." keeps the country code with the area code.
		if w.opens && !(len(run) == 1 && strings.HasPrefix(run[0].text, "+")) {
			flush()
		}
		run = append(run, w)
		if w.closes {
			flush()
		}
	}
	flush()
	return runs
}

func parsePhoneWord(f string) (phoneWord, bool) {
	if strings.ContainsRune(f, '%') {
		return phoneWord{}, false
	}
	core := strings.TrimLeftFunc(f, func(r rune) bool { return r != '+' && r != '(' && !isDigitRune(r) })
	prefixed := len(core) < len(f)
	trimmed := strings.TrimRightFunc(core, func(r rune) bool { return r != ')' && !isDigitRune(r) })
	suffixed := len(trimmed) < len(core)
	core = trimmed

	digits := countDigits(core)
	if digits == 0 || !phoneWordRe.MatchString(core) || dateRe.MatchString(core) {
		return phoneWord{}, false
	}
	return phoneWord{
		text:   core,
		digits: digits,
		opens:  prefixed || core[0] == '+' || core[0] == '(',
		closes: suffixed,
	}, true
}

// splitRun cuts a run into numbers of 7-15 digits, taking the longest number
// that fits at each position. Words that cannot start a number are dropped.
func splitRun(run []phoneWord) [][]phoneWord {
	var out [][]phoneWord
	for i := 0; i < len(run); {
		if i+1 < len(run) && zipRe.MatchString(run[i].text) {
			i++
			continue
		}
		best, sum := -1, 0
		for j := i; j < len(run); j++ {
			sum += run[j].digits
			if sum > maxPhoneDigits {
				break
			}
			if sum >= minPhoneDigits {
				best = j
			}
		}
		if best < 0 {
			i++
			continue
		}
		out = append(out, run[i:best+1])
		i = best + 1
	}
	return out
}

// Address returns the first street-address-like match, or "".
func Address(text string) string {
	m := addressRe.FindString(text)
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m), ",;"))
}

func looksLikeHTML(s string) bool {
	i := strings.IndexByte(s, '<')
	return i >= 0 && strings.IndexByte(s[i:], '>') > 0
}

// htmlText renders the visible text of an HTML document plus the targets of
// mailto: and tel: links, which often carry details not present in the text.
func htmlText(doc string) (string, []string) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return doc, nil
	}
	d.Find("script, style, noscript").Remove()

	var links []string
	d.Find(`a[href^="mailto:"], a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimPrefix(strings.TrimPrefix(href, "mailto:"), "tel:")
		if i := strings.IndexByte(href, '?'); i >= 0 {
			href = href[:i]
		}
		links = append(links, href)
	})

	var b strings.Builder
	d.Find("body").Each(func(_ int, s *goquery.Selection) {
		blockText(&b, s)
	})
	if b.Len() == 0 {
		b.WriteString(d.Text())
	}
	return b.String(), links
}

// blockText writes text with a newline after block elements so adjacent blocks
// do not fuse into one token ("Call us</p><p>555..." would otherwise join).
func blockText(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		if name == "#text" {
			b.WriteString(c.Text())
			return
		}
		blockText(b, c)
		if blockTags[name] {
			b.WriteByte('\n')
		}
	})
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "br": true, "tr": true, "td": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "table": true, "section": true, "article": true,
	"header": true, "footer": true, "address": true, "dd": true, "dt": true,
}

func sanitizeEmail(raw string) string {
	e := strings.ToLower(strings.Trim(raw, ".-_"))
	for _, suf := range assetSuffixes {
		if strings.HasSuffix(e, suf) {
			return ""
		}
	}
	at := strings.LastIndexByte(e, '@')
	if at <= 0 || at == len(e)-1 {
		return ""
	}
	if strings.Contains(e[at:], "..") {
		return ""
	}
	return e
}

func normalizePhone(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) || (s[i] == '+' && b.Len() == 0) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			n++
		}
	}
	return n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isDigitRune(r rune) bool { return r >= '0' && r <= '9' }
