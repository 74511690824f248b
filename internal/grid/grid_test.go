package grid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/logger"
	"github.com/mohammed-shakir/zonegrid/internal/spatial"
	"github.com/mohammed-shakir/zonegrid/internal/store"
	"github.com/mohammed-shakir/zonegrid/internal/store/memstore"
	"github.com/mohammed-shakir/zonegrid/internal/zoneevents"
)

type recorder struct {
	mu     sync.Mutex
	events []zoneevents.Event
}

func (r *recorder) Publish(ev zoneevents.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func newStore(t *testing.T, ws ...model.Warehouse) *memstore.Store {
	t.Helper()
	st, err := memstore.New(spatial.DefaultRes)
	require.NoError(t, err)
	for _, w := range ws {
		require.NoError(t, st.PutWarehouse(context.Background(), w))
	}
	return st
}

func cairo() model.Warehouse {
	return model.Warehouse{
		ID: "wh-cai", Name: "Cairo Hub", Code: "CAI", Region: "CAIRO", Active: true,
		Location: &model.Point{Lat: 30.0444, Lng: 31.2357}, DefaultShippingPrice: 30,
	}
}

func params(radius, side float64, overwrite bool) Params {
	return Params{RadiusKm: radius, CellSideKm: side, Overwrite: overwrite}
}

func TestGenerateThenActivateFirstCell(t *testing.T) {
	st := newStore(t, cairo())
	rec := &recorder{}
	svc := New(st, st, WithEmitter(rec))
	ctx := context.Background()

	res, err := svc.Generate(ctx, "wh-cai", params(5, 1, false))
	require.NoError(t, err)
	require.Equal(t, 30, res.Total)
	require.Len(t, res.Data, res.Total)
	assert.Equal(t, 5.0, res.RadiusKm)
	assert.Equal(t, 1.0, res.CellSideKm)

	for i, z := range res.Data {
		assert.Equal(t, fmt.Sprintf("CAI-cell-%d", i+1), z.Name)
		assert.False(t, z.Active)
		assert.Equal(t, "CAIRO", z.Region)
		assert.Equal(t, "wh-cai", z.WarehouseID)
		assert.Equal(t, model.DefaultCountry, z.Country)
		assert.NotEmpty(t, z.ID)
	}

	got, err := svc.Get(ctx, "wh-cai")
	require.NoError(t, err)
	assert.Equal(t, res.Total, got.Results)
	for _, z := range got.Data {
		assert.False(t, z.Active)
	}

	cell1 := res.Data[0]
	edit, err := NewUpdate(cell1.ID, map[string]any{"active": true})
	require.NoError(t, err)
	up, err := svc.Update(ctx, "wh-cai", []Edit{edit})
	require.NoError(t, err)
	assert.Equal(t, 1, up.ModifiedCount)
	assert.Len(t, up.Data, res.Total)

	got, err = svc.Get(ctx, "wh-cai")
	require.NoError(t, err)
	for _, z := range got.Data {
		if z.ID == cell1.ID {
			assert.True(t, z.Active, "cell1 activated")
		} else {
			assert.False(t, z.Active, "%s unchanged", z.Name)
		}
	}

	require.Len(t, rec.events, 2)
	assert.Equal(t, zoneevents.GridGenerated, rec.events[0].Op)
	assert.Len(t, rec.events[0].ZoneIDs, 30)
	assert.Equal(t, 30, rec.events[0].Count)
	assert.Equal(t, zoneevents.GridUpdated, rec.events[1].Op)
	assert.Equal(t, 1, rec.events[1].Count)
}

func TestGenerate_ConflictWithoutOverwriteLeavesZonesUntouched(t *testing.T) {
	st := newStore(t, cairo())
	svc := New(st, st)
	ctx := context.Background()

	_, err := svc.Generate(ctx, "wh-cai", params(5, 1, false))
	require.NoError(t, err)
	before, _ := st.ListByWarehouse(ctx, "wh-cai")

	_, err = svc.Generate(ctx, "wh-cai", params(3, 0.5, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "grid_exists", apperr.CodeOf(err))

	after, _ := st.ListByWarehouse(ctx, "wh-cai")
	assert.Equal(t, ids(before), ids(after))
}

func TestGenerate_OverwriteReplacesGrid(t *testing.T) {
	st := newStore(t, cairo())
	svc := New(st, st)
	ctx := context.Background()

	first, err := svc.Generate(ctx, "wh-cai", params(5, 1, false))
	require.NoError(t, err)

	second, err := svc.Generate(ctx, "wh-cai", params(3, 1, true))
	require.NoError(t, err)
	require.Greater(t, second.Total, 0)

	n, err := st.CountByWarehouse(ctx, "wh-cai")
	require.NoError(t, err)
	assert.Equal(t, second.Total, n)

	z, err := st.FindByID(ctx, first.Data[0].ID)
	require.NoError(t, err)
	assert.Nil(t, z, "old cells are removed")
}

func TestGenerate_Errors(t *testing.T) {
	noLoc := cairo()
	noLoc.ID = "wh-noloc"
	noLoc.Location = nil
	st := newStore(t, cairo(), noLoc)
	svc := New(st, st, WithMaxCells(100))
	ctx := context.Background()

	cases := []struct {
		name string
		wid  string
		p    Params
		kind error
		code string
	}{
		{"unknown warehouse", "nope", params(5, 1, false), apperr.ErrNotFound, "warehouse_not_found"},
		{"no location", "wh-noloc", params(5, 1, false), apperr.ErrValidation, "warehouse_without_location"},
		{"zero radius", "wh-cai", params(0, 1, false), apperr.ErrValidation, "invalid_grid_params"},
		{"negative side", "wh-cai", params(5, -1, false), apperr.ErrValidation, "invalid_grid_params"},
		{"cell larger than box", "wh-cai", params(0.5, 1, false), apperr.ErrValidation, "grid_empty"},
		{"over cap", "wh-cai", params(50, 0.5, false), apperr.ErrValidation, "grid_too_large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Generate(ctx, tc.wid, tc.p)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.code, apperr.CodeOf(err))
		})
	}

	n, _ := st.CountByWarehouse(ctx, "wh-cai")
	assert.Equal(t, 0, n, "failed generations write nothing")
}

func TestGenerate_CodeFallsBackToWH(t *testing.T) {
	w := cairo()
	w.Code = ""
	st := newStore(t, w)
	svc := New(st, st)

	res, err := svc.Generate(context.Background(), "wh-cai", params(3, 1, false))
	require.NoError(t, err)
	assert.Equal(t, "WH-cell-1", res.Data[0].Name)
}

func TestGenerate_ConcurrentCallsForOneWarehouse(t *testing.T) {
	st := newStore(t, cairo())
	svc := New(st, st)
	ctx := context.Background()

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Generate(ctx, "wh-cai", params(5, 1, false))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, conflicts)
	n, _ := st.CountByWarehouse(ctx, "wh-cai")
	assert.Equal(t, 30, n)
}

type heldLease struct{}

func (heldLease) AcquireGridLease(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

type countingLease struct {
	acquired, released int
}

func (l *countingLease) AcquireGridLease(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	l.acquired++
	return func(context.Context) error { l.released++; return nil }, true, nil
}

func TestGenerate_Lease(t *testing.T) {
	st := newStore(t, cairo())
	ctx := context.Background()

	_, err := New(st, st, WithLease(heldLease{}, time.Second)).Generate(ctx, "wh-cai", params(5, 1, false))
	require.Error(t, err)
	assert.Equal(t, "grid_generation_in_progress", apperr.CodeOf(err))
	n, _ := st.CountByWarehouse(ctx, "wh-cai")
	assert.Equal(t, 0, n)

	l := &countingLease{}
	_, err = New(st, st, WithLease(l, time.Second)).Generate(ctx, "wh-cai", params(5, 1, false))
	require.NoError(t, err)
	assert.Equal(t, 1, l.acquired)
	assert.Equal(t, 1, l.released)
}

func TestUpdate_MembershipGateRejectsWholeBatch(t *testing.T) {
	other := cairo()
	other.ID, other.Code = "wh-2", "TWO"
	other.Location = &model.Point{Lat: 31.2, Lng: 29.9}
	st := newStore(t, cairo(), other)
	svc := New(st, st)
	ctx := context.Background()

	mine, err := svc.Generate(ctx, "wh-cai", params(3, 1, false))
	require.NoError(t, err)
	theirs, err := svc.Generate(ctx, "wh-2", params(3, 1, false))
	require.NoError(t, err)

	e1, _ := NewUpdate(mine.Data[0].ID, map[string]any{"active": true})
	e2, _ := NewUpdate(theirs.Data[0].ID, map[string]any{"active": true})
	_, err = svc.Update(ctx, "wh-cai", []Edit{e1, e2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	active, err := st.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "no document modified")
}

func TestUpdate_FieldSemantics(t *testing.T) {
	st := newStore(t, cairo())
	svc := New(st, st)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, "wh-cai", params(3, 1, false))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(gen.Data), 4)
	a, b, c, d := gen.Data[0].ID, gen.Data[1].ID, gen.Data[2].ID, gen.Data[3].ID

	var seed []Edit
	require.NoError(t, json.Unmarshal([]byte(fmt.Sprintf(`[
		{"zoneId":%q,"action":"update","shippingFee":12.5,"areaName":"  Zamalek "},
		{"zoneId":%q,"action":"update","shippingFee":"20","areaName":"Dokki"},
		{"zoneId":%q,"action":"update","shippingFee":7},
		{"zoneId":%q,"action":"update","name":"Renamed","active":true}
	]`, a, b, c, d)), &seed))
	up, err := svc.Update(ctx, "wh-cai", seed)
	require.NoError(t, err)
	assert.Equal(t, 4, up.ModifiedCount)

	za, _ := st.FindByID(ctx, a)
	require.NotNil(t, za.ShippingFee)
	assert.Equal(t, 12.5, *za.ShippingFee)
	assert.Equal(t, "zamalek", za.AreaName)
	zd, _ := st.FindByID(ctx, d)
	assert.Equal(t, "Renamed", zd.Name)
	assert.True(t, zd.Active)

	var clear []Edit
	require.NoError(t, json.Unmarshal([]byte(fmt.Sprintf(`[
		{"zoneId":%q,"action":"update","shippingFee":null,"areaName":null},
		{"zoneId":%q,"action":"update","shippingFee":"","areaName":""},
		{"zoneId":%q,"action":"update","shippingFee":0},
		{"zoneId":%q,"action":"update","name":42,"active":"yes"},
		{"zoneId":"not-even-checked","action":"delete"}
	]`, a, b, c, d)), &clear))
	up, err = svc.Update(ctx, "wh-cai", clear)
	require.NoError(t, err)
	assert.Equal(t, 3, up.ModifiedCount, "edit with only ignored fields is skipped")

	for _, id := range []string{a, b, c} {
		z, _ := st.FindByID(ctx, id)
		assert.Nil(t, z.ShippingFee, "%s fee unset", id)
		assert.Empty(t, z.AreaName, "%s area unset", id)
	}
	zd, _ = st.FindByID(ctx, d)
	assert.Equal(t, "Renamed", zd.Name)
	assert.True(t, zd.Active)
}

func TestUpdate_Validation(t *testing.T) {
	st := newStore(t, cairo())
	svc := New(st, st)
	ctx := context.Background()
	gen, err := svc.Generate(ctx, "wh-cai", params(3, 1, false))
	require.NoError(t, err)

	_, err = svc.Update(ctx, "wh-cai", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	neg, _ := NewUpdate(gen.Data[0].ID, map[string]any{"shippingFee": -3})
	_, err = svc.Update(ctx, "wh-cai", []Edit{neg})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	bad, _ := NewUpdate(gen.Data[0].ID, map[string]any{"shippingFee": "cheap"})
	_, err = svc.Update(ctx, "wh-cai", []Edit{bad})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	noID, _ := NewUpdate("", map[string]any{"active": true})
	_, err = svc.Update(ctx, "wh-cai", []Edit{noID})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	ok, _ := NewUpdate(gen.Data[0].ID, map[string]any{"active": true})
	_, err = svc.Update(ctx, "missing", []Edit{ok})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// failingRepo applies the first patch then fails.
type failingRepo struct {
	store.ZoneRepository
}

func (f failingRepo) BulkPartialUpdate(ctx context.Context, patches []model.ZonePatch) (int, error) {
	n, err := f.ZoneRepository.BulkPartialUpdate(ctx, patches[:1])
	if err != nil {
		return n, err
	}
	return n, errors.New("write concern timeout")
}

// unchangedRepo reports every patch as already applied.
type unchangedRepo struct {
	store.ZoneRepository
}

func (unchangedRepo) BulkPartialUpdate(context.Context, []model.ZonePatch) (int, error) {
	return 0, nil
}

func TestUpdate_EventCountIsDocumentsWritten(t *testing.T) {
	st := newStore(t, cairo())
	ctx := context.Background()
	gen, err := New(st, st).Generate(ctx, "wh-cai", params(3, 1, false))
	require.NoError(t, err)

	rec := &recorder{}
	svc := New(unchangedRepo{st}, st, WithEmitter(rec))
	e1, _ := NewUpdate(gen.Data[0].ID, map[string]any{"active": false})
	e2, _ := NewUpdate(gen.Data[1].ID, map[string]any{"active": false})
	up, err := svc.Update(ctx, "wh-cai", []Edit{e1, e2})
	require.NoError(t, err)
	assert.Zero(t, up.ModifiedCount)

	require.Len(t, rec.events, 1)
	assert.Equal(t, zoneevents.GridUpdated, rec.events[0].Op)
	assert.Len(t, rec.events[0].ZoneIDs, 2)
	assert.Zero(t, rec.events[0].Count)
}

func TestUpdate_PartialFailureIsSurfaced(t *testing.T) {
	st := newStore(t, cairo())
	ctx := context.Background()
	gen, err := New(st, st).Generate(ctx, "wh-cai", params(3, 1, false))
	require.NoError(t, err)

	svc := New(failingRepo{st}, st)
	e1, _ := NewUpdate(gen.Data[0].ID, map[string]any{"active": true})
	e2, _ := NewUpdate(gen.Data[1].ID, map[string]any{"active": true})
	_, err = svc.Update(ctx, "wh-cai", []Edit{e1, e2})
	require.Error(t, err)

	var bulk *BulkError
	require.ErrorAs(t, err, &bulk)
	assert.Equal(t, 1, bulk.Modified)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestGet_UnknownWarehouse(t *testing.T) {
	st := newStore(t)
	_, err := New(st, st).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGet_EmptyGridMarshalsEmptyArray(t *testing.T) {
	st := newStore(t, cairo())
	res, err := New(st, st).Get(context.Background(), "wh-cai")
	require.NoError(t, err)
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":0,"data":[]}`, string(b))
}

func TestStripes_HonourContext(t *testing.T) {
	s := newStripes(1)
	unlock, err := s.lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.lock(ctx, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := s.lock(context.Background(), "b")
	require.NoError(t, err)
	unlock2()
}

func ids(zs []model.Zone) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.ID
	}
	return out
}

func TestGenerate_LogsCarryWarehouseFromContext(t *testing.T) {
	var buf bytes.Buffer
	zl := logger.Build(logger.Config{Level: "info"}, &buf)
	st := newStore(t, cairo())
	svc := New(st, st, WithLogger(logger.NewSlog(&zl)))

	_, err := svc.Generate(context.Background(), "wh-cai", params(3, 1, false))
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	assert.Equal(t, "grid generated", line["msg"])
	assert.Equal(t, "wh-cai", line["warehouse"])
	assert.Equal(t, float64(6), line["cells"])
}
