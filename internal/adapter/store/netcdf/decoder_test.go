package netcdf

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/sti-api/internal/domain"
)

// writeGridNC creates a NetCDF file with lat/lon coordinate variables and one
// FLOAT data variable varName holding values (row-major [lat, lon]).
func writeGridNC(t *testing.T, path, varName string, lats, lons []float64, values []float32, fill *float32) {
	t.Helper()
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	defer f.Close()

	latDim, err := f.AddDim("lat", uint64(len(lats)))
	require.NoError(t, err)
	lonDim, err := f.AddDim("lon", uint64(len(lons)))
	require.NoError(t, err)
	vlat, err := f.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	require.NoError(t, err)
	vlon, err := f.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	require.NoError(t, err)
	vdata, err := f.AddVar(varName, netcdf.FLOAT, []netcdf.Dim{latDim, lonDim})
	require.NoError(t, err)
	if fill != nil {
		require.NoError(t, vdata.Attr("_FillValue").WriteFloat32s([]float32{*fill}))
	}

	require.NoError(t, f.EndDef())
	require.NoError(t, vlat.WriteFloat64s(lats))
	require.NoError(t, vlon.WriteFloat64s(lons))
	require.NoError(t, vdata.WriteFloat32s(values))
}

func TestDecoder_OpenAndMaterialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sti.nc")
	writeGridNC(t, path, "sti",
		[]float64{-30, -31},
		[]float64{-72, -71, -70},
		[]float32{1, 2, 3, 4, 5, 6}, nil)

	h, err := NewDecoder().Open(path)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, []string{"sti"}, h.DataVarNames())

	ds, err := h.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []float64{-30, -31}, ds.Coords["lat"])
	assert.Equal(t, []float64{-72, -71, -70}, ds.Coords["lon"])

	v := ds.Vars["sti"]
	require.NotNil(t, v)
	assert.Equal(t, []string{"lat", "lon"}, v.Dims)
	assert.Equal(t, []int{2, 3}, v.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, v.Values)
}

func TestDecoder_RenameVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var.nc")
	writeGridNC(t, path, "var", []float64{0, 1}, []float64{0, 1}, []float32{1, 2, 3, 4}, nil)

	h, err := NewDecoder().Open(path)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.RenameVariable("var", "sti"))
	assert.Equal(t, []string{"sti"}, h.DataVarNames())
	assert.Error(t, h.RenameVariable("missing", "other"))

	ds, err := h.Materialize()
	require.NoError(t, err)
	assert.True(t, ds.HasVar("sti"))
	assert.False(t, ds.HasVar("var"))
	assert.Equal(t, "sti", ds.Vars["sti"].Name)
}

func TestDecoder_FillValueBecomesNaN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fill.nc")
	fill := float32(-9999)
	writeGridNC(t, path, "sti", []float64{0, 1}, []float64{0, 1}, []float32{1, -9999, 3, 4}, &fill)

	h, err := NewDecoder().Open(path)
	require.NoError(t, err)
	defer h.Close()

	ds, err := h.Materialize()
	require.NoError(t, err)
	values := ds.Vars["sti"].Values
	assert.InDelta(t, 1.0, values[0], 0)
	assert.True(t, math.IsNaN(values[1]))
}

func TestDecoder_MaterializedDatasetSurvivesClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sti.nc")
	writeGridNC(t, path, "sti", []float64{0, 1}, []float64{0, 1}, []float32{1, 2, 3, 4}, nil)

	h, err := NewDecoder().Open(path)
	require.NoError(t, err)
	ds, err := h.Materialize()
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	require.NoError(t, os.Remove(path))
	sum, err := domain.Summarize(ds, "sti")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Count)

	_, err = h.Materialize()
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestDecoder_OpenGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.nc")
	require.NoError(t, os.WriteFile(path, make([]byte, 512), 0o600))

	_, err := NewDecoder().Open(path)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestDecoder_OpenMissing(t *testing.T) {
	_, err := NewDecoder().Open(filepath.Join(t.TempDir(), "missing.nc"))
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestDecoder_PackedByteVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "byte.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	latDim, err := f.AddDim("lat", 2)
	require.NoError(t, err)
	lonDim, err := f.AddDim("lon", 2)
	require.NoError(t, err)
	vlat, err := f.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	require.NoError(t, err)
	vlon, err := f.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	require.NoError(t, err)
	vdata, err := f.AddVar("sti", netcdf.BYTE, []netcdf.Dim{latDim, lonDim})
	require.NoError(t, err)
	require.NoError(t, vdata.Attr("_FillValue").WriteInt8s([]int8{-127}))
	require.NoError(t, vdata.Attr("scale_factor").WriteFloat64s([]float64{0.5}))
	require.NoError(t, vdata.Attr("add_offset").WriteFloat64s([]float64{10}))
	require.NoError(t, f.EndDef())
	require.NoError(t, vlat.WriteFloat64s([]float64{0, 1}))
	require.NoError(t, vlon.WriteFloat64s([]float64{0, 1}))
	require.NoError(t, vdata.WriteInt8s([]int8{2, -127, -4, 100}))
	require.NoError(t, f.Close())

	h, err := NewDecoder().Open(path)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, []string{"sti"}, h.DataVarNames())

	ds, err := h.Materialize()
	require.NoError(t, err)
	require.True(t, ds.HasVar("sti"))
	values := ds.Vars["sti"].Values
	assert.InDelta(t, 11.0, values[0], 1e-9)
	assert.True(t, math.IsNaN(values[1]))
	assert.InDelta(t, 8.0, values[2], 1e-9)
	assert.InDelta(t, 60.0, values[3], 1e-9)
}

func TestDecoder_Int64Variable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "int64.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	require.NoError(t, err)
	latDim, err := f.AddDim("lat", 1)
	require.NoError(t, err)
	lonDim, err := f.AddDim("lon", 3)
	require.NoError(t, err)
	vdata, err := f.AddVar("var", netcdf.INT64, []netcdf.Dim{latDim, lonDim})
	require.NoError(t, err)
	vflag, err := f.AddVar("flag", netcdf.UBYTE, []netcdf.Dim{latDim, lonDim})
	require.NoError(t, err)
	require.NoError(t, f.EndDef())
	require.NoError(t, vdata.WriteInt64s([]int64{-5, 0, 1 << 40}))
	require.NoError(t, vflag.WriteUint8s([]uint8{0, 1, 255}))
	require.NoError(t, f.Close())

	h, err := NewDecoder().Open(path)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, []string{"flag", "var"}, h.DataVarNames())

	ds, err := h.Materialize()
	require.NoError(t, err)
	require.True(t, ds.HasVar("var"))
	require.True(t, ds.HasVar("flag"))
	assert.Equal(t, []float64{-5, 0, 1 << 40}, ds.Vars["var"].Values)
	assert.Equal(t, []float64{0, 1, 255}, ds.Vars["flag"].Values)
}

func TestDecoder_AuxiliaryCoordinatesAreNotDataVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curvilinear.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	yDim, err := f.AddDim("y", 2)
	require.NoError(t, err)
	xDim, err := f.AddDim("x", 2)
	require.NoError(t, err)
	grid := []netcdf.Dim{yDim, xDim}
	vlat, err := f.AddVar("lat", netcdf.DOUBLE, grid)
	require.NoError(t, err)
	vlon, err := f.AddVar("lon", netcdf.DOUBLE, grid)
	require.NoError(t, err)
	vdata, err := f.AddVar("var", netcdf.FLOAT, grid)
	require.NoError(t, err)
	require.NoError(t, vdata.Attr("coordinates").WriteBytes([]byte("lat lon")))
	require.NoError(t, f.EndDef())
	require.NoError(t, vlat.WriteFloat64s([]float64{-30, -30, -31, -31}))
	require.NoError(t, vlon.WriteFloat64s([]float64{-72, -71, -72, -71}))
	require.NoError(t, vdata.WriteFloat32s([]float32{1, 2, 3, 4}))
	require.NoError(t, f.Close())

	h, err := NewDecoder().Open(path)
	require.NoError(t, err)
	defer h.Close()
	require.Equal(t, []string{"var"}, h.DataVarNames())

	name, err := domain.PickDataVar(h, "sti")
	require.NoError(t, err)
	assert.Equal(t, "var", name)
	require.NoError(t, h.RenameVariable(name, "sti"))

	ds, err := h.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []string{"sti"}, ds.DataVarNames())
	assert.Equal(t, []float64{1, 2, 3, 4}, ds.Vars["sti"].Values)
}
