// Package netcdf decodes NetCDF files through libnetcdf.
//
// libnetcdf is not thread-safe. Callers must serialize every call into this
// package, including Close.
package netcdf

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/sti-api/internal/adapter/store"
	"go.ngs.io/sti-api/internal/domain"
	"go.ngs.io/sti-api/internal/logging"
)

// Decoder opens NetCDF files read-only.
type Decoder struct{}

// NewDecoder returns a NetCDF decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

var _ store.Decoder = (*Decoder)(nil)

// Open opens path and reads its variable metadata. Failures wrap
// domain.ErrDecode.
func (d *Decoder) Open(path string) (store.Handle, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrDecode, path, err)
	}

	vars, err := readVarInfo(nc)
	if err != nil {
		_ = nc.Close()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDecode, path, err)
	}

	return &Handle{path: path, nc: nc, vars: vars, renames: make(map[string]string)}, nil
}

// varInfo is a variable's metadata, read at open.
type varInfo struct {
	name  string
	dims  []string
	shape []int
	v     netcdf.Var
	aux   bool // named in some variable's coordinates attribute
}

// isCoord reports whether the variable is a coordinate variable: 1-D and
// named after its dimension, or an auxiliary coordinate such as a 2-D
// lat(y, x) on a curvilinear grid.
func (vi *varInfo) isCoord() bool {
	return vi.aux || (len(vi.dims) == 1 && vi.dims[0] == vi.name)
}

func (vi *varInfo) size() int {
	n := 1
	for _, s := range vi.shape {
		n *= s
	}
	return n
}

func readVarInfo(nc netcdf.Dataset) ([]*varInfo, error) {
	n, err := nc.NVars()
	if err != nil {
		return nil, fmt.Errorf("failed to count variables: %w", err)
	}

	out := make([]*varInfo, 0, n)
	for i := range n {
		v := nc.VarN(i)
		name, err := v.Name()
		if err != nil {
			return nil, fmt.Errorf("failed to get variable %d name: %w", i, err)
		}
		dims, err := v.Dims()
		if err != nil {
			return nil, fmt.Errorf("failed to get dimensions of %s: %w", name, err)
		}
		vi := &varInfo{name: name, v: v, dims: make([]string, len(dims)), shape: make([]int, len(dims))}
		for j, dim := range dims {
			if vi.dims[j], err = dim.Name(); err != nil {
				return nil, fmt.Errorf("failed to get dimension name of %s: %w", name, err)
			}
			length, err := dim.Len()
			if err != nil {
				return nil, fmt.Errorf("failed to get dimension length of %s: %w", name, err)
			}
			vi.shape[j] = int(length) //nolint:gosec // dimension lengths fit in int
		}
		out = append(out, vi)
	}

	for _, vi := range out {
		for _, name := range strings.Fields(attrText(vi.v, "coordinates")) {
			for _, other := range out {
				if other.name == name {
					other.aux = true
				}
			}
		}
	}
	return out, nil
}

// attrText returns a text attribute of v, or "" when it is absent or not text.
func attrText(v netcdf.Var, name string) string {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00")
}

// Handle is an open NetCDF file.
type Handle struct {
	path    string
	nc      netcdf.Dataset
	vars    []*varInfo
	renames map[string]string // file name -> exposed name
	closed  bool
}

var _ store.Handle = (*Handle)(nil)

// DataVarNames returns the exposed names of the non-coordinate variables, sorted.
func (h *Handle) DataVarNames() []string {
	names := make([]string, 0, len(h.vars))
	for _, vi := range h.vars {
		if !vi.isCoord() {
			names = append(names, h.exposed(vi.name))
		}
	}
	sort.Strings(names)
	return names
}

// RenameVariable renames a data variable in the materialized view.
func (h *Handle) RenameVariable(from, to string) error {
	if from == to {
		return nil
	}
	names := h.DataVarNames()
	if !slices.Contains(names, from) {
		return fmt.Errorf("variable %q not found", from)
	}
	if slices.Contains(names, to) {
		return fmt.Errorf("variable %q already exists", to)
	}
	for _, vi := range h.vars {
		if !vi.isCoord() && h.exposed(vi.name) == from {
			h.renames[vi.name] = to
			return nil
		}
	}
	return fmt.Errorf("variable %q not found", from)
}

func (h *Handle) exposed(name string) string {
	if to, ok := h.renames[name]; ok {
		return to
	}
	return name
}

// Materialize reads every variable into memory. Data variables of a type
// that cannot be represented as float64 are skipped. Failures wrap
// domain.ErrDecode.
func (h *Handle) Materialize() (*domain.Dataset, error) {
	if h.closed {
		return nil, fmt.Errorf("%w: %s is closed", domain.ErrDecode, h.path)
	}

	ds := domain.NewDataset()
	for _, vi := range h.vars {
		if vi.isCoord() && len(vi.dims) > 1 {
			logging.Debug().Str("file", h.path).Str("variable", vi.name).Msg("Skipping multi-dimensional coordinate")
			continue
		}
		values, err := readValues(vi.v, vi.size())
		if errors.Is(err, errUnsupportedType) {
			logging.Debug().Str("file", h.path).Str("variable", vi.name).Err(err).Msg("Skipping variable")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: read %s: %v", domain.ErrDecode, h.path, vi.name, err)
		}
		applyPacking(vi.v, values)

		if vi.isCoord() {
			ds.Coords[vi.name] = values
			continue
		}
		name := h.exposed(vi.name)
		ds.Vars[name] = &domain.Variable{
			Name:   name,
			Dims:   slices.Clone(vi.dims),
			Shape:  slices.Clone(vi.shape),
			Values: values,
		}
	}
	return ds, nil
}

// Close releases the file. It is safe to call more than once.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.nc.Close()
}

var errUnsupportedType = errors.New("unsupported variable type")

// readValues reads n values of v as float64.
func readValues(v netcdf.Var, n int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}

	switch t {
	case netcdf.DOUBLE:
		data := make([]float64, n)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, err
		}
		return data, nil
	case netcdf.FLOAT:
		return readWidened(v.ReadFloat32s, n)
	case netcdf.INT64:
		return readWidened(v.ReadInt64s, n)
	case netcdf.UINT64:
		return readWidened(v.ReadUint64s, n)
	case netcdf.INT:
		return readWidened(v.ReadInt32s, n)
	case netcdf.UINT:
		return readWidened(v.ReadUint32s, n)
	case netcdf.SHORT:
		return readWidened(v.ReadInt16s, n)
	case netcdf.USHORT:
		return readWidened(v.ReadUint16s, n)
	case netcdf.BYTE:
		return readWidened(v.ReadInt8s, n)
	case netcdf.UBYTE:
		return readWidened(v.ReadUint8s, n)
	default:
		return nil, fmt.Errorf("%w: %v", errUnsupportedType, t)
	}
}

type number interface {
	float32 | int64 | uint64 | int32 | uint32 | int16 | uint16 | int8 | uint8
}

func readWidened[T number](read func([]T) error, n int) ([]float64, error) {
	tmp := make([]T, n)
	if err := read(tmp); err != nil {
		return nil, err
	}
	return widen(tmp), nil
}

func widen[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, val := range in {
		out[i] = float64(val)
	}
	return out
}

// applyPacking replaces fill values with NaN and unpacks scale_factor and
// add_offset in place.
func applyPacking(v netcdf.Var, values []float64) {
	if fv, ok := attrFloat(v, "_FillValue", "missing_value"); ok {
		for i, val := range values {
			if val == fv {
				values[i] = math.NaN()
			}
		}
	}

	scale, hasScale := attrFloat(v, "scale_factor")
	offset, hasOffset := attrFloat(v, "add_offset")
	if !hasScale && !hasOffset {
		return
	}
	if !hasScale {
		scale = 1
	}
	for i, val := range values {
		values[i] = val*scale + offset
	}
}

// attrFloat returns the first of the named attributes present on v as float64.
func attrFloat(v netcdf.Var, names ...string) (float64, bool) {
	for _, name := range names {
		a := v.Attr(name)
		if n, err := a.Len(); err != nil || n == 0 {
			continue
		}
		if f, ok := attrNumber(a); ok {
			return f, true
		}
	}
	return 0, false
}

// attrNumber reads the first value of a numeric attribute of any type.
func attrNumber(a netcdf.Attr) (float64, bool) {
	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	for _, read := range []func(netcdf.Attr) (float64, error){
		readAttr[float32](netcdf.Attr.ReadFloat32s),
		readAttr[int64](netcdf.Attr.ReadInt64s),
		readAttr[uint64](netcdf.Attr.ReadUint64s),
		readAttr[int32](netcdf.Attr.ReadInt32s),
		readAttr[uint32](netcdf.Attr.ReadUint32s),
		readAttr[int16](netcdf.Attr.ReadInt16s),
		readAttr[uint16](netcdf.Attr.ReadUint16s),
		readAttr[int8](netcdf.Attr.ReadInt8s),
		readAttr[uint8](netcdf.Attr.ReadUint8s),
	} {
		if f, err := read(a); err == nil {
			return f, true
		}
	}
	return 0, false
}

func readAttr[T number](read func(netcdf.Attr, []T) error) func(netcdf.Attr) (float64, error) {
	return func(a netcdf.Attr) (float64, error) {
		buf := make([]T, 1)
		if err := read(a, buf); err != nil {
			return 0, err
		}
		return float64(buf[0]), nil
	}
}
