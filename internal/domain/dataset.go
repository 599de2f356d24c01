package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Axis names tried, in order, when locating the horizontal dimensions.
var (
	LatNames = []string{"latitude", "lat", "y"}
	LonNames = []string{"longitude", "lon", "x"}
)

// Variable is a fully materialized, row-major data variable.
type Variable struct {
	Name   string
	Dims   []string
	Shape  []int
	Values []float64 // Missing values are NaN.
}

// Size returns the product of the variable's shape.
func (v *Variable) Size() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// Dataset is an in-memory decoded grid. It holds no file handles and is owned
// by the caller that loaded it.
type Dataset struct {
	Coords map[string][]float64 // Coordinate variables keyed by dimension name.
	Vars   map[string]*Variable // Data variables.
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Coords: make(map[string][]float64),
		Vars:   make(map[string]*Variable),
	}
}

// DataVarNames returns the data variable names in sorted order.
func (d *Dataset) DataVarNames() []string {
	names := make([]string, 0, len(d.Vars))
	for name := range d.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasVar reports whether name is a data variable.
func (d *Dataset) HasVar(name string) bool {
	_, ok := d.Vars[name]
	return ok
}

// Plane is a 2-D latitude/longitude view of a data variable.
// Values[i][j] is the value at (Lat[i], Lon[j]); axes keep their stored order.
type Plane struct {
	Lat    []float64
	Lon    []float64
	Values [][]float64
}

// Plane extracts the horizontal slice of a data variable. The last two
// dimensions are the horizontal ones; any leading dimension (e.g. time) is
// reduced to its first index. A [lon, lat] layout is transposed.
func (d *Dataset) Plane(name string) (*Plane, error) {
	v, ok := d.Vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	n := len(v.Dims)
	if n < 2 || len(v.Shape) != n {
		return nil, fmt.Errorf("variable %q must have at least 2 dimensions, got %d", name, n)
	}

	dim0, dim1 := v.Dims[n-2], v.Dims[n-1]
	rows, cols := v.Shape[n-2], v.Shape[n-1]
	if len(v.Values) < rows*cols {
		return nil, fmt.Errorf("variable %q holds %d values, expected at least %d", name, len(v.Values), rows*cols)
	}

	grid := make([][]float64, rows)
	for i := range rows {
		grid[i] = v.Values[i*cols : (i+1)*cols]
	}

	axis0 := d.axis(dim0, rows)
	axis1 := d.axis(dim1, cols)

	// Data is [lon, lat] - transpose so rows follow latitude.
	if isAxisName(dim1, LatNames) && !isAxisName(dim0, LatNames) {
		return &Plane{Lat: axis1, Lon: axis0, Values: transpose2D(grid)}, nil
	}
	return &Plane{Lat: axis0, Lon: axis1, Values: grid}, nil
}

// axis returns the coordinate values for dim, or 0..n-1 when the dataset has
// no matching coordinate variable.
func (d *Dataset) axis(dim string, n int) []float64 {
	if c, ok := d.Coords[dim]; ok && len(c) == n {
		return slices.Clone(c)
	}
	idx := make([]float64, n)
	for i := range idx {
		idx[i] = float64(i)
	}
	return idx
}

func isAxisName(dim string, names []string) bool {
	return slices.Contains(names, strings.ToLower(dim))
}

func transpose2D(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return data
	}
	nRows, nCols := len(data), len(data[0])
	out := make([][]float64, nCols)
	for i := range nCols {
		out[i] = make([]float64, nRows)
		for j := range nRows {
			out[i][j] = data[j][i]
		}
	}
	return out
}
