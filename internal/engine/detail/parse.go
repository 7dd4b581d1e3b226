package detail

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rendis/leadtap/internal/model"
)

var (
	ratingRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	countRe  = regexp.MustCompile(`(\d[\d,.\s]*)\s*([kKmM])?\b`)

	// Place URLs carry the pin as !3d<lat>!4d<lng>; the viewport centre @<lat>,<lng> is the fallback.
	pinRe      = regexp.MustCompile(`!3d(-?\d+(?:\.\d+)?)!4d(-?\d+(?:\.\d+)?)`)
	viewportRe = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
)

// Rating reads the first decimal in s ("4.5 stars", "Rated 4,5 out of 5").
// Values outside 0..5 are rejected.
func Rating(s string) *float64 {
	m := ratingRe.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// Count reads a review count ("1,234 reviews", "(87)", "1.2K").
func Count(s string) *int {
	m := countRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	num := strings.Join(strings.Fields(m[1]), "")
	num = strings.TrimRight(num, ",.")
	mult := 1.0
	switch strings.ToLower(m[2]) {
	case "k":
		mult = 1e3
	case "m":
		mult = 1e6
	}
	var v float64
	if mult > 1 {
		f, err := strconv.ParseFloat(strings.Replace(num, ",", ".", 1), 64)
		if err != nil {
			return nil
		}
		v = f * mult
	} else {
		n, err := strconv.Atoi(strings.NewReplacer(",", "", ".", "").Replace(num))
		if err != nil {
			return nil
		}
		v = float64(n)
	}
	n := int(v + 0.5)
	return &n
}

// Coordinates extracts the location encoded in a map place URL.
func Coordinates(rawURL string) *model.Coordinates {
	m := pinRe.FindStringSubmatch(rawURL)
	if m == nil {
		m = viewportRe.FindStringSubmatch(rawURL)
	}
	if m == nil {
		return nil
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil
	}
	return &model.Coordinates{Lat: lat, Lng: lng}
}

// StripLabel removes a "Label: " prefix such as "Address: " or "Phone: ".
func StripLabel(s string) string {
	if i := strings.Index(s, ": "); i > 0 && i < 20 {
		return strings.TrimSpace(s[i+2:])
	}
	return strings.TrimSpace(s)
}
