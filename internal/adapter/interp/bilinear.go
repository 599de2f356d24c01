package interp

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

// ErrOutsideGrid is returned when a point falls outside the grid extent.
var ErrOutsideGrid = errors.New("point is outside grid")

// GridCell represents a cell in a regular grid with four corner values.
type GridCell struct {
	// Corner coordinates (forming a rectangle).
	X0, X1 float64 // X boundaries (e.g., longitude).
	Y0, Y1 float64 // Y boundaries (e.g., latitude).

	// Values at the four corners:
	// V00: value at (X0, Y0).
	// V10: value at (X1, Y0).
	// V01: value at (X0, Y1).
	// V11: value at (X1, Y1).
	V00, V10, V01, V11 float64
}

// BilinearInterpolate performs bilinear interpolation within a grid cell
// Formula:
//
//	f(x,y) ≈ (1-t)(1-u)f(x0,y0) + t(1-u)f(x1,y0) + (1-t)u*f(x0,y1) + tu*f(x1,y1)
//
// where:
//
//	t = (x - x0) / (x1 - x0)
//	u = (y - y0) / (y1 - y0)
//
// A NaN corner with non-zero weight yields NaN.
func BilinearInterpolate(cell GridCell, x, y float64) (float64, error) {
	if cell.X1 <= cell.X0 {
		return 0, fmt.Errorf("invalid grid cell: X1 must be > X0")
	}
	if cell.Y1 <= cell.Y0 {
		return 0, fmt.Errorf("invalid grid cell: Y1 must be > Y0")
	}

	// Small tolerance for floating point.
	const epsilon = 1e-9
	if x < cell.X0-epsilon || x > cell.X1+epsilon {
		return 0, fmt.Errorf("%w: x %.6f not in cell [%.6f, %.6f]", ErrOutsideGrid, x, cell.X0, cell.X1)
	}
	if y < cell.Y0-epsilon || y > cell.Y1+epsilon {
		return 0, fmt.Errorf("%w: y %.6f not in cell [%.6f, %.6f]", ErrOutsideGrid, y, cell.Y0, cell.Y1)
	}

	t := math.Max(0, math.Min(1, (x-cell.X0)/(cell.X1-cell.X0)))
	u := math.Max(0, math.Min(1, (y-cell.Y0)/(cell.Y1-cell.Y0)))

	var result float64
	for _, c := range [...]struct{ w, v float64 }{
		{(1 - t) * (1 - u), cell.V00},
		{t * (1 - u), cell.V10},
		{(1 - t) * u, cell.V01},
		{t * u, cell.V11},
	} {
		// Skip zero weights so an exact hit next to a NaN corner is still finite.
		if c.w == 0 {
			continue
		}
		result += c.w * c.v
	}
	return result, nil
}

// Grid2D represents a regular 2D grid for interpolation.
type Grid2D struct {
	X      []float64   // X coordinates (e.g., longitudes), strictly increasing.
	Y      []float64   // Y coordinates (e.g., latitudes), strictly increasing.
	Values [][]float64 // Values[i][j] corresponds to (X[j], Y[i]).
}

// NewGrid2D builds a grid from axes in stored order. Descending axes are
// reversed, together with the matching value rows or columns, so the result
// is ascending on both axes. Inputs are not modified.
func NewGrid2D(x, y []float64, values [][]float64) (*Grid2D, error) {
	g := &Grid2D{X: slices.Clone(x), Y: slices.Clone(y), Values: make([][]float64, len(values))}
	for i, row := range values {
		g.Values[i] = slices.Clone(row)
	}

	if len(g.Y) > 1 && g.Y[0] > g.Y[len(g.Y)-1] {
		slices.Reverse(g.Y)
		slices.Reverse(g.Values)
	}
	if len(g.X) > 1 && g.X[0] > g.X[len(g.X)-1] {
		slices.Reverse(g.X)
		for _, row := range g.Values {
			slices.Reverse(row)
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks if the grid is valid.
func (g *Grid2D) Validate() error {
	if len(g.X) < 2 {
		return fmt.Errorf("grid must have at least 2 X coordinates")
	}
	if len(g.Y) < 2 {
		return fmt.Errorf("grid must have at least 2 Y coordinates")
	}
	if len(g.Values) != len(g.Y) {
		return fmt.Errorf("number of value rows (%d) must match Y coordinates (%d)", len(g.Values), len(g.Y))
	}

	for i, row := range g.Values {
		if len(row) != len(g.X) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(g.X))
		}
	}

	for i := 1; i < len(g.X); i++ {
		if g.X[i] <= g.X[i-1] {
			return fmt.Errorf("X coordinates must be strictly increasing")
		}
	}
	for i := 1; i < len(g.Y); i++ {
		if g.Y[i] <= g.Y[i-1] {
			return fmt.Errorf("Y coordinates must be strictly increasing")
		}
	}

	return nil
}

// InterpolateAt performs bilinear interpolation at a given point.
func (g *Grid2D) InterpolateAt(x, y float64) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, fmt.Errorf("invalid grid: %w", err)
	}

	xIdx := cellIndex(g.X, x)
	if xIdx < 0 {
		return 0, fmt.Errorf("%w: x %.6f not in [%.6f, %.6f]", ErrOutsideGrid, x, g.X[0], g.X[len(g.X)-1])
	}
	yIdx := cellIndex(g.Y, y)
	if yIdx < 0 {
		return 0, fmt.Errorf("%w: y %.6f not in [%.6f, %.6f]", ErrOutsideGrid, y, g.Y[0], g.Y[len(g.Y)-1])
	}

	cell := GridCell{
		X0:  g.X[xIdx],
		X1:  g.X[xIdx+1],
		Y0:  g.Y[yIdx],
		Y1:  g.Y[yIdx+1],
		V00: g.Values[yIdx][xIdx],
		V10: g.Values[yIdx][xIdx+1],
		V01: g.Values[yIdx+1][xIdx],
		V11: g.Values[yIdx+1][xIdx+1],
	}

	return BilinearInterpolate(cell, x, y)
}

// cellIndex returns i such that axis[i] <= v <= axis[i+1], or -1.
func cellIndex(axis []float64, v float64) int {
	n := len(axis)
	if math.IsNaN(v) || v < axis[0] || v > axis[n-1] {
		return -1
	}
	i := sort.SearchFloat64s(axis, v)
	if i >= n-1 {
		return n - 2
	}
	if axis[i] == v || i == 0 {
		return i
	}
	return i - 1
}
