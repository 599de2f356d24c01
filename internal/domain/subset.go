package domain

import (
	"fmt"
	"sort"
)

// BoundingBox is a latitude/longitude query window, bounds inclusive.
type BoundingBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// Validate requires LatMin < LatMax and LonMin < LonMax.
func (b BoundingBox) Validate() error {
	if !(b.LatMin < b.LatMax) {
		return fmt.Errorf("%w: lat_min (%g) must be less than lat_max (%g)", ErrRange, b.LatMin, b.LatMax)
	}
	if !(b.LonMin < b.LonMax) {
		return fmt.Errorf("%w: lon_min (%g) must be less than lon_max (%g)", ErrRange, b.LonMin, b.LonMax)
	}
	return nil
}

// Subset is a flattened grid window. The three slices have equal length and
// are in latitude-major order: for each surviving latitude, every surviving
// longitude.
type Subset struct {
	Lats   []float64
	Lons   []float64
	Values []float64
}

// Len returns the number of grid points in the subset.
func (s *Subset) Len() int {
	return len(s.Values)
}

// SubsetDataset slices variable name of ds to bbox. Ascending and descending
// axes are both supported; an empty window yields empty slices, not an error.
func SubsetDataset(ds *Dataset, name string, bbox BoundingBox) (*Subset, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}

	plane, err := ds.Plane(name)
	if err != nil {
		return nil, err
	}

	lat0, lat1 := axisRange(plane.Lat, bbox.LatMin, bbox.LatMax)
	lon0, lon1 := axisRange(plane.Lon, bbox.LonMin, bbox.LonMax)

	out := &Subset{Lats: []float64{}, Lons: []float64{}, Values: []float64{}}
	nLat, nLon := lat1-lat0, lon1-lon0
	if nLat <= 0 || nLon <= 0 {
		return out, nil
	}

	total := nLat * nLon
	out.Lats = make([]float64, 0, total)
	out.Lons = make([]float64, 0, total)
	out.Values = make([]float64, 0, total)
	for i := lat0; i < lat1; i++ {
		for j := lon0; j < lon1; j++ {
			out.Lats = append(out.Lats, plane.Lat[i])
			out.Lons = append(out.Lons, plane.Lon[j])
			out.Values = append(out.Values, plane.Values[i][j])
		}
	}
	return out, nil
}

// axisRange returns the half-open index range [start, end) of axis values
// within [lo, hi]. The axis must be monotonic; its direction is taken from
// the first and last values, and a descending axis is searched with the
// bounds swapped.
func axisRange(axis []float64, lo, hi float64) (int, int) {
	n := len(axis)
	if n == 0 {
		return 0, 0
	}
	if axis[0] <= axis[n-1] {
		start := sort.Search(n, func(i int) bool { return axis[i] >= lo })
		end := sort.Search(n, func(i int) bool { return axis[i] > hi })
		return start, end
	}
	start := sort.Search(n, func(i int) bool { return axis[i] <= hi })
	end := sort.Search(n, func(i int) bool { return axis[i] < lo })
	return start, end
}
