package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.ngs.io/sti-api/internal/adapter/interp"
	"go.ngs.io/sti-api/internal/domain"
)

// Catalog lists what the remote store holds.
type Catalog interface {
	ListRuns(ctx context.Context) ([]string, error)
	ListSteps(ctx context.Context, run string) ([]string, error)
	ObjectExists(ctx context.Context, key string) bool
}

// DatasetLoader returns a caller-owned decoded dataset for a run and step.
type DatasetLoader interface {
	LoadDataset(ctx context.Context, run, step string) (*domain.Dataset, error)
}

// RunsResponse lists the available runs, oldest first.
type RunsResponse struct {
	Runs  []string `json:"runs"`
	Count int      `json:"count"`
}

// StepsResponse lists the steps of one run.
type StepsResponse struct {
	Run   string   `json:"run"`
	Steps []string `json:"steps"`
	Count int      `json:"count"`
}

// GridRequest selects a bounding box of one run/step.
type GridRequest struct {
	Run  string
	Step string
	BBox domain.BoundingBox
}

// GridResponse is a flattened bounding-box subset. Missing values are null.
type GridResponse struct {
	Run      string     `json:"run"`
	Step     string     `json:"step"`
	Key      string     `json:"key"`
	Variable string     `json:"variable"`
	Count    int        `json:"count"`
	Lat      []float64  `json:"lat"`
	Lon      []float64  `json:"lon"`
	Values   []*float64 `json:"values"`
}

// SummaryResponse describes the index grid of one run/step.
type SummaryResponse struct {
	Run      string   `json:"run"`
	Step     string   `json:"step"`
	Variable string   `json:"variable"`
	Rows     int      `json:"rows"`
	Cols     int      `json:"cols"`
	Count    int      `json:"count"`
	Missing  int      `json:"missing"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Mean     *float64 `json:"mean"`
}

// PointResponse is the index value interpolated at a location.
type PointResponse struct {
	Run      string   `json:"run"`
	Step     string   `json:"step"`
	Variable string   `json:"variable"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Value    *float64 `json:"value"`
}

// SourceResponse locates the remote object of a run/step.
type SourceResponse struct {
	Run    string `json:"run"`
	Step   string `json:"step"`
	Key    string `json:"key"`
	URI    string `json:"uri"`
	Exists bool   `json:"exists"`
}

// STIUseCase answers STI queries on top of the catalog and dataset loader.
type STIUseCase struct {
	catalog   Catalog
	loader    DatasetLoader
	keys      domain.KeyBuilder
	canonical string
}

// NewSTIUseCase creates the use case. canonical is the variable name every
// loaded dataset exposes the index under.
func NewSTIUseCase(catalog Catalog, loader DatasetLoader, keys domain.KeyBuilder, canonical string) *STIUseCase {
	return &STIUseCase{catalog: catalog, loader: loader, keys: keys, canonical: canonical}
}

// Runs lists the available runs.
func (uc *STIUseCase) Runs(ctx context.Context) (*RunsResponse, error) {
	runs, err := uc.catalog.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return &RunsResponse{Runs: nonNil(runs), Count: len(runs)}, nil
}

// Steps lists the steps of run. An unknown run has no steps.
func (uc *STIUseCase) Steps(ctx context.Context, run string) (*StepsResponse, error) {
	if err := domain.ValidateRun(run); err != nil {
		return nil, err
	}
	steps, err := uc.catalog.ListSteps(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("list steps of %s: %w", run, err)
	}
	return &StepsResponse{Run: run, Steps: nonNil(steps), Count: len(steps)}, nil
}

// Latest returns the newest run and its steps.
func (uc *STIUseCase) Latest(ctx context.Context) (*StepsResponse, error) {
	runs, err := uc.catalog.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs available", domain.ErrNotFound)
	}
	return uc.Steps(ctx, runs[len(runs)-1])
}

// Grid returns the index values inside req.BBox.
func (uc *STIUseCase) Grid(ctx context.Context, req GridRequest) (*GridResponse, error) {
	if err := req.BBox.Validate(); err != nil {
		return nil, err
	}
	step, key, err := uc.resolve(req.Run, req.Step)
	if err != nil {
		return nil, err
	}

	ds, err := uc.loader.LoadDataset(ctx, req.Run, step)
	if err != nil {
		return nil, err
	}
	sub, err := domain.SubsetDataset(ds, uc.canonical, req.BBox)
	if err != nil {
		return nil, err
	}

	values := make([]*float64, len(sub.Values))
	for i, v := range sub.Values {
		values[i] = finite(v)
	}
	return &GridResponse{
		Run:      req.Run,
		Step:     step,
		Key:      key,
		Variable: uc.canonical,
		Count:    sub.Len(),
		Lat:      sub.Lats,
		Lon:      sub.Lons,
		Values:   values,
	}, nil
}

// Summary returns shape and statistics of the index grid.
func (uc *STIUseCase) Summary(ctx context.Context, run, stepIn string) (*SummaryResponse, error) {
	step, _, err := uc.resolve(run, stepIn)
	if err != nil {
		return nil, err
	}
	ds, err := uc.loader.LoadDataset(ctx, run, step)
	if err != nil {
		return nil, err
	}
	s, err := domain.Summarize(ds, uc.canonical)
	if err != nil {
		return nil, err
	}
	return &SummaryResponse{
		Run:      run,
		Step:     step,
		Variable: uc.canonical,
		Rows:     s.Rows,
		Cols:     s.Cols,
		Count:    s.Count,
		Missing:  s.Missing,
		Min:      finite(s.Min),
		Max:      finite(s.Max),
		Mean:     finite(s.Mean),
	}, nil
}

// Point interpolates the index at (lat, lon). Points outside the grid are a
// range error.
func (uc *STIUseCase) Point(ctx context.Context, run, stepIn string, lat, lon float64) (*PointResponse, error) {
	step, _, err := uc.resolve(run, stepIn)
	if err != nil {
		return nil, err
	}
	ds, err := uc.loader.LoadDataset(ctx, run, step)
	if err != nil {
		return nil, err
	}
	plane, err := ds.Plane(uc.canonical)
	if err != nil {
		return nil, err
	}

	grid, err := interp.NewGrid2D(plane.Lon, plane.Lat, plane.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: grid cannot be interpolated: %v", domain.ErrRange, err)
	}
	v, err := grid.InterpolateAt(lon, lat)
	if errors.Is(err, interp.ErrOutsideGrid) {
		return nil, fmt.Errorf("%w: %v", domain.ErrRange, err)
	}
	if err != nil {
		return nil, err
	}

	return &PointResponse{
		Run:      run,
		Step:     step,
		Variable: uc.canonical,
		Lat:      lat,
		Lon:      lon,
		Value:    finite(v),
	}, nil
}

// Source returns where run/step lives remotely and whether it exists there.
// Existence is best effort.
func (uc *STIUseCase) Source(ctx context.Context, run, stepIn string) (*SourceResponse, error) {
	step, key, err := uc.resolve(run, stepIn)
	if err != nil {
		return nil, err
	}
	uri, err := uc.keys.BuildObjectURI(run, step)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Run:    run,
		Step:   step,
		Key:    key,
		URI:    uri,
		Exists: uc.catalog.ObjectExists(ctx, key),
	}, nil
}

// resolve validates run and returns the normalized step and object key.
func (uc *STIUseCase) resolve(run, step string) (string, string, error) {
	if err := domain.ValidateRun(run); err != nil {
		return "", "", err
	}
	normalized, err := domain.NormalizeStep(step)
	if err != nil {
		return "", "", err
	}
	key, err := uc.keys.BuildObjectKey(run, normalized)
	if err != nil {
		return "", "", err
	}
	return normalized, key, nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
