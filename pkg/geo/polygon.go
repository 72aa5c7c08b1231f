package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

const boundaryEpsilon = 1e-9

// Point is a geographic coordinate. It serializes as a two-element numeric
// array [latitude, longitude], the wire format territory boundaries use.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate lies inside WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// MarshalJSON encodes the point as [lat, lng].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

// UnmarshalJSON decodes a [lat, lng] pair.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [lat, lng] pair, got %d elements", len(pair))
	}
	p.Lat = pair[0]
	p.Lng = pair[1]
	return nil
}

// Ring is an ordered list of polygon vertices. The canonical stored form is
// explicitly closed (first vertex repeated at the end); consumers tolerate an
// unclosed ring and normalize on read.
type Ring []Point

// Closed returns the ring with the closing vertex appended when missing.
func (r Ring) Closed() Ring {
	if len(r) == 0 {
		return r
	}
	if r[0] == r[len(r)-1] {
		return r
	}
	closed := make(Ring, len(r)+1)
	copy(closed, r)
	closed[len(r)] = r[0]
	return closed
}

// Validate checks vertex count, distinctness, and coordinate bounds. The ring
// must describe a polygon with at least three distinct vertices before
// closure.
func (r Ring) Validate() error {
	open := r
	if len(r) > 1 && r[0] == r[len(r)-1] {
		open = r[:len(r)-1]
	}

	distinct := make(map[Point]struct{}, len(open))
	for _, p := range open {
		if !p.Valid() {
			return fmt.Errorf("vertex (%v, %v) outside coordinate bounds", p.Lat, p.Lng)
		}
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return fmt.Errorf("polygon requires at least 3 distinct vertices, got %d", len(distinct))
	}
	return nil
}

// Contains reports whether the point lies inside the polygon or on its
// boundary, using a horizontal-ray crossing count.
func (r Ring) Contains(p Point) bool {
	ring := r.Closed()
	if len(ring) < 4 {
		return false
	}

	for i := 0; i < len(ring)-1; i++ {
		if onSegment(ring[i], ring[i+1], p) {
			return true
		}
	}

	inside := false
	for i := 0; i < len(ring)-1; i++ {
		a, b := ring[i], ring[i+1]
		if (a.Lng > p.Lng) == (b.Lng > p.Lng) {
			continue
		}
		crossLat := (b.Lat-a.Lat)*(p.Lng-a.Lng)/(b.Lng-a.Lng) + a.Lat
		if p.Lat < crossLat {
			inside = !inside
		}
	}
	return inside
}

func onSegment(a, b, p Point) bool {
	cross := (b.Lat-a.Lat)*(p.Lng-a.Lng) - (b.Lng-a.Lng)*(p.Lat-a.Lat)
	if math.Abs(cross) > boundaryEpsilon {
		return false
	}
	return p.Lat >= math.Min(a.Lat, b.Lat)-boundaryEpsilon &&
		p.Lat <= math.Max(a.Lat, b.Lat)+boundaryEpsilon &&
		p.Lng >= math.Min(a.Lng, b.Lng)-boundaryEpsilon &&
		p.Lng <= math.Max(a.Lng, b.Lng)+boundaryEpsilon
}
