package toponym

import (
	"fmt"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Region is the geographic extent of a Location.
type Region interface {
	// Center returns the representative point of the region.
	Center() s2.LatLng
	// Bounds returns the latitude/longitude bounding rectangle.
	Bounds() s2.Rect
	// Contains reports whether the point lies inside the region.
	Contains(ll s2.LatLng) bool
	// Distance returns the angular distance between the two region centres.
	Distance(other Region) s1.Angle
}

// PointRegion is a degenerate region consisting of a single coordinate.
type PointRegion struct {
	LatLng s2.LatLng
}

// NewPointRegion creates a point region from degrees.
func NewPointRegion(lat, lng float64) PointRegion {
	return PointRegion{LatLng: s2.LatLngFromDegrees(lat, lng)}
}

func (p PointRegion) Center() s2.LatLng { return p.LatLng }

func (p PointRegion) Bounds() s2.Rect { return s2.RectFromLatLng(p.LatLng) }

// Contains compares at E7 precision so that a point contains its own
// coordinate after a degrees round trip.
func (p PointRegion) Contains(ll s2.LatLng) bool {
	return p.LatLng.Lat.E7() == ll.Lat.E7() && p.LatLng.Lng.E7() == ll.Lng.E7()
}

func (p PointRegion) Distance(other Region) s1.Angle {
	return p.LatLng.Distance(other.Center())
}

func (p PointRegion) String() string {
	return fmt.Sprintf("point(%.5f, %.5f)", p.LatLng.Lat.Degrees(), p.LatLng.Lng.Degrees())
}

// RectRegion is an axis-aligned latitude/longitude bounding box.
type RectRegion struct {
	Rect s2.Rect
}

// NewRectRegion creates a bounding-box region from its corners in degrees.
// Corners are normalised so that min <= max on both axes; boxes crossing the
// antimeridian are not supported.
func NewRectRegion(minLat, minLng, maxLat, maxLng float64) RectRegion {
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	if minLng > maxLng {
		minLng, maxLng = maxLng, minLng
	}
	return RectRegion{Rect: s2.Rect{
		Lat: r1.Interval{Lo: (s1.Angle(minLat) * s1.Degree).Radians(), Hi: (s1.Angle(maxLat) * s1.Degree).Radians()},
		Lng: s1.Interval{Lo: (s1.Angle(minLng) * s1.Degree).Radians(), Hi: (s1.Angle(maxLng) * s1.Degree).Radians()},
	}}
}

func (r RectRegion) Center() s2.LatLng { return r.Rect.Center() }

func (r RectRegion) Bounds() s2.Rect { return r.Rect }

func (r RectRegion) Contains(ll s2.LatLng) bool { return r.Rect.ContainsLatLng(ll) }

func (r RectRegion) Distance(other Region) s1.Angle {
	return r.Rect.Center().Distance(other.Center())
}

func (r RectRegion) String() string {
	lo, hi := r.Rect.Lo(), r.Rect.Hi()
	return fmt.Sprintf("rect(%.5f, %.5f, %.5f, %.5f)",
		lo.Lat.Degrees(), lo.Lng.Degrees(), hi.Lat.Degrees(), hi.Lng.Degrees())
}

// LocationType is a coarse category tag for a Location.
type LocationType string

const (
	TypeUnknown  LocationType = ""
	TypeCity     LocationType = "city"
	TypeState    LocationType = "state"
	TypeCountry  LocationType = "country"
	TypeWater    LocationType = "water"
	TypeSite     LocationType = "site"
	TypeMountain LocationType = "mountain"
)

// Location is a single gazetteer entry. Locations are immutable once the
// gazetteer has produced them.
type Location struct {
	ID         int
	Name       string
	Region     Region
	Type       LocationType
	Population int // 0 means unknown
}

// Coordinates returns the centre of the location in degrees.
func (l Location) Coordinates() (lat, lng float64) {
	if l.Region == nil {
		return 0, 0
	}
	c := l.Region.Center()
	return c.Lat.Degrees(), c.Lng.Degrees()
}

func (l Location) String() string {
	lat, lng := l.Coordinates()
	return fmt.Sprintf("%s#%d(%.4f, %.4f)", l.Name, l.ID, lat, lng)
}
