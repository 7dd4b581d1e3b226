package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/rendis/leadtap/internal/model"
)

// Area restricts records to a bounding box, a radius around a center, or both.
// The zero Area accepts everything.
type Area struct {
	Bound    *orb.Bound
	Center   orb.Point // orb.Point is [lng, lat]
	RadiusKm float64
}

// AroundPlace returns an Area covering p's bounding box, or a circle of
// radiusKm around its center when radiusKm > 0.
func AroundPlace(p Place, radiusKm float64) Area {
	if radiusKm > 0 {
		return Area{Center: p.Center, RadiusKm: radiusKm}
	}
	b := p.Bound
	return Area{Bound: &b}
}

func (a Area) empty() bool {
	return a.Bound == nil && a.RadiusKm <= 0
}

// Contains reports whether c falls inside the area.
func (a Area) Contains(c model.Coordinates) bool {
	pt := orb.Point{c.Lng, c.Lat}
	if a.Bound != nil && !a.Bound.Contains(pt) {
		return false
	}
	if a.RadiusKm > 0 && geo.DistanceHaversine(a.Center, pt)/1000 > a.RadiusKm {
		return false
	}
	return true
}

// FilterRecords drops records whose coordinates fall outside a.
// Records without coordinates are kept since nothing proves they are out of range.
func FilterRecords(records []model.BusinessRecord, a Area) []model.BusinessRecord {
	if a.empty() {
		return records
	}
	var kept []model.BusinessRecord
	for _, r := range records {
		if r.Coordinates != nil && !a.Contains(*r.Coordinates) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// FilterRating keeps records whose rating lies in [min, max]. Zero bounds are open.
// Unrated records are dropped only when a minimum is set.
func FilterRating(records []model.BusinessRecord, minRating, maxRating float64) []model.BusinessRecord {
	if minRating <= 0 && maxRating <= 0 {
		return records
	}
	var kept []model.BusinessRecord
	for _, r := range records {
		if r.Rating == nil {
			if minRating > 0 {
				continue
			}
			kept = append(kept, r)
			continue
		}
		if minRating > 0 && *r.Rating < minRating {
			continue
		}
		if maxRating > 0 && *r.Rating > maxRating {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
