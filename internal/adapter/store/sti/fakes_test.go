package sti

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.ngs.io/sti-api/internal/adapter/cache"
	"go.ngs.io/sti-api/internal/adapter/store"
	"go.ngs.io/sti-api/internal/domain"
	"go.ngs.io/sti-api/internal/observability"
)

var testKeys = domain.KeyBuilder{
	Bucket:     "pangu-mvp-data",
	BasePrefix: "indices/sti/",
	IndexName:  "sti",
	RegionName: "chile",
}

// File contents understood by fakeDecoder. Each is padded past the minimum
// size unless noted.
func goodFile(vars ...string) []byte {
	return pad("GOOD:" + strings.Join(vars, ","))
}

// lateFile opens but fails when materialized.
func lateFile(vars ...string) []byte {
	return pad("LATE:" + strings.Join(vars, ","))
}

// dropFile lists vars but materializes none of them, like a file whose data
// variables are all of a type the decoder cannot read.
func dropFile(vars ...string) []byte {
	return pad("DROP:" + strings.Join(vars, ","))
}

func badFile() []byte {
	return pad("JUNK")
}

func pad(s string) []byte {
	return append([]byte(s+"\n"), bytes.Repeat([]byte{'.'}, 200)...)
}

// fakeStore serves objects from memory. Each key holds a queue of contents;
// downloads pop from the front until one content remains.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][][]byte
	prefixes  map[string][]string
	listErr   error
	existsErr error
	delay     time.Duration

	downloads atomic.Int32
	lists     atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][][]byte), prefixes: make(map[string][]string)}
}

func (f *fakeStore) put(key string, contents ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = contents
}

func (f *fakeStore) ListCommonPrefixes(_ context.Context, _, prefix, _ string) ([]string, error) {
	f.lists.Add(1)
	time.Sleep(f.delay)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.prefixes[prefix], nil
}

func (f *fakeStore) Download(_ context.Context, bucket, key, localPath string) error {
	f.downloads.Add(1)
	time.Sleep(f.delay)

	f.mu.Lock()
	queue, ok := f.objects[key]
	var data []byte
	if ok {
		data = queue[0]
		if len(queue) > 1 {
			f.objects[key] = queue[1:]
		}
	}
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: s3://%s/%s", domain.ErrNotFound, bucket, key)
	}
	return os.WriteFile(localPath, data, 0o600)
}

func (f *fakeStore) Exists(_ context.Context, _, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

var _ store.ObjectStore = (*fakeStore)(nil)

// fakeDecoder decodes the formats written by goodFile and lateFile and
// records whether it was ever entered concurrently.
type fakeDecoder struct {
	inUse      atomic.Int32
	concurrent atomic.Bool
	opens      atomic.Int32
}

func (d *fakeDecoder) enter() func() {
	if d.inUse.Add(1) > 1 {
		d.concurrent.Store(true)
	}
	time.Sleep(time.Millisecond)
	return func() { d.inUse.Add(-1) }
}

func (d *fakeDecoder) Open(path string) (store.Handle, error) {
	defer d.enter()()
	d.opens.Add(1)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	header, _, _ := strings.Cut(string(data), "\n")
	kind, list, _ := strings.Cut(header, ":")
	if kind != "GOOD" && kind != "LATE" && kind != "DROP" {
		return nil, errors.New("not a NetCDF file")
	}
	var vars []string
	if list != "" {
		vars = strings.Split(list, ",")
	}
	return &fakeHandle{dec: d, vars: vars, late: kind == "LATE", drop: kind == "DROP", renames: map[string]string{}}, nil
}

type fakeHandle struct {
	dec     *fakeDecoder
	vars    []string
	late    bool
	drop    bool
	renames map[string]string
}

func (h *fakeHandle) DataVarNames() []string {
	defer h.dec.enter()()
	out := make([]string, len(h.vars))
	for i, v := range h.vars {
		out[i] = h.name(v)
	}
	return out
}

func (h *fakeHandle) name(v string) string {
	if to, ok := h.renames[v]; ok {
		return to
	}
	return v
}

func (h *fakeHandle) RenameVariable(from, to string) error {
	defer h.dec.enter()()
	h.renames[from] = to
	return nil
}

func (h *fakeHandle) Materialize() (*domain.Dataset, error) {
	defer h.dec.enter()()
	if h.late {
		return nil, fmt.Errorf("%w: truncated data section", domain.ErrDecode)
	}
	ds := domain.NewDataset()
	ds.Coords["lat"] = []float64{-31, -30}
	ds.Coords["lon"] = []float64{-72, -71}
	if h.drop {
		return ds, nil
	}
	for _, v := range h.vars {
		name := h.name(v)
		ds.Vars[name] = &domain.Variable{
			Name:   name,
			Dims:   []string{"lat", "lon"},
			Shape:  []int{2, 2},
			Values: []float64{1, 2, 3, 4},
		}
	}
	return ds, nil
}

func (h *fakeHandle) Close() error {
	defer h.dec.enter()()
	return nil
}

type fixture struct {
	dir     string
	store   *fakeStore
	decoder *fakeDecoder
	serial  *SerialDecoder
	cache   *LocalCache
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:     t.TempDir(),
		store:   newFakeStore(),
		decoder: &fakeDecoder{},
		metrics: observability.NewMetricsForTesting(),
	}
	f.serial = NewSerialDecoder(f.decoder, f.metrics)
	f.cache = NewLocalCache(f.store, testKeys, f.serial, CacheConfig{
		Dir:         f.dir,
		MinSize:     100,
		LockTimeout: 5 * time.Second,
		LockRetry:   5 * time.Millisecond,
	}, f.metrics)
	return f
}

func (f *fixture) key(t *testing.T, run, step string) string {
	t.Helper()
	key, err := testKeys.BuildObjectKey(run, step)
	require.NoError(t, err)
	return key
}

func (f *fixture) catalog(ttl time.Duration) *Catalog {
	return NewCatalog(f.store, testKeys, cache.New[[]string](ttl, cache.WithMaxEntries(128)), f.metrics)
}

func (f *fixture) tmpFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.tmp"))
	require.NoError(t, err)
	return matches
}
