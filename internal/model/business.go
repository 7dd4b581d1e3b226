package model

import "strings"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ContactInfo holds contact details found in free text or HTML.
// Emails are lower-cased; both slices keep first-seen order and hold no duplicates.
type ContactInfo struct {
	Emails  []string `json:"emails"`
	Phones  []string `json:"phones"`
	Address string   `json:"address"`
}

// Empty reports whether nothing was found.
func (c ContactInfo) Empty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0 && c.Address == ""
}

// Merge folds other into c, keeping c's address when it already has one.
func (c ContactInfo) Merge(other ContactInfo) ContactInfo {
	out := ContactInfo{Address: c.Address}
	out.Emails = appendUnique(append([]string(nil), c.Emails...), other.Emails, strings.ToLower)
	out.Phones = appendUnique(append([]string(nil), c.Phones...), other.Phones, digitsOnly)
	if out.Address == "" {
		out.Address = other.Address
	}
	return out
}

// BusinessRecord is a listing collected from a provider.
// Pointer fields are nil when the provider did not expose the value.
type BusinessRecord struct {
	Provider     string       `json:"provider"`
	SourceURL    string       `json:"source_url,omitempty"`
	Name         string       `json:"name"`
	Address      string       `json:"address,omitempty"`
	Phone        string       `json:"phone,omitempty"`
	Website      string       `json:"website,omitempty"`
	Rating       *float64     `json:"rating,omitempty"`
	ReviewCount  *int         `json:"review_count,omitempty"`
	Category     string       `json:"category,omitempty"`
	PlusCode     string       `json:"plus_code,omitempty"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	OpeningHours []string     `json:"opening_hours,omitempty"`
	Contacts     *ContactInfo `json:"contacts,omitempty"`
	Query        string       `json:"query,omitempty"`
}

// Profile is a person found through the professional network provider.
type Profile struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Location   string `json:"location"`
	ProfileURL string `json:"profile_url"`
}

func appendUnique(dst, src []string, key func(string) string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[key(v)] = true
	}
	for _, v := range src {
		k := key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		dst = append(dst, v)
	}
	return dst
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
