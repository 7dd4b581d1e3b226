package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

const nominatimURL = "https://nominatim.openstreetmap.org/search"

type nominatimResult struct {
	BoundingBox []string `json:"boundingbox"` // [minLat, maxLat, minLng, maxLng]
	DisplayName string   `json:"display_name"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
}

// Place is a geocoded location.
type Place struct {
	Name   string
	Center orb.Point
	Bound  orb.Bound
}

// Geocoder resolves free-text locations using the OSM Nominatim API.
type Geocoder struct {
	BaseURL string
	Client  *http.Client
}

func NewGeocoder() *Geocoder {
	return &Geocoder{
		BaseURL: nominatimURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Geocode returns the first match for location.
func (g *Geocoder) Geocode(ctx context.Context, location string) (Place, error) {
	u := g.BaseURL + "?" + url.Values{
		"q":      {location},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Place{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "leadtap/0.1 (business listing collector)")

	resp, err := g.Client.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Place{}, fmt.Errorf("decoding geocoding response: %w", err)
	}
	if len(results) == 0 {
		return Place{}, fmt.Errorf("location %q not found", location)
	}

	r := results[0]
	bb := r.BoundingBox
	if len(bb) < 4 {
		return Place{}, fmt.Errorf("invalid bounding box from geocoder")
	}

	// Nominatim returns [minLat, maxLat, minLng, maxLng] as strings
	var v [4]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(bb[i], 64); err != nil {
			return Place{}, fmt.Errorf("invalid bounding box value %q", bb[i])
		}
	}
	bound := orb.Bound{Min: orb.Point{v[2], v[0]}, Max: orb.Point{v[3], v[1]}}

	center := bound.Center()
	lat, errLat := strconv.ParseFloat(r.Lat, 64)
	lng, errLng := strconv.ParseFloat(r.Lon, 64)
	if errLat == nil && errLng == nil {
		center = orb.Point{lng, lat}
	}

	return Place{Name: r.DisplayName, Center: center, Bound: bound}, nil
}
