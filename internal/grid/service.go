// Package grid generates hexagonal zone grids around warehouses and applies
// bulk edits to them.
package grid

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/store"
	"github.com/mohammed-shakir/zonegrid/internal/zoneevents"
)

const (
	DefaultRadiusKm   = 10.0
	DefaultCellSideKm = 1.0
	DefaultMaxCells   = 20000
	DefaultLeaseTTL   = 30 * time.Second
)

// Lease is a cross-process generation lock. ok is false when another process
// holds it.
type Lease interface {
	AcquireGridLease(ctx context.Context, warehouseID string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type Service struct {
	zones      store.ZoneRepository
	warehouses store.WarehouseDirectory

	locks    *stripes
	lease    Lease
	leaseTTL time.Duration
	maxCells int
	events   zoneevents.Emitter
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithLease(l Lease, ttl time.Duration) Option {
	return func(s *Service) {
		s.lease = l
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

// WithMaxCells caps a single generation; n <= 0 keeps the default.
func WithMaxCells(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCells = n
		}
	}
}

func WithEmitter(e zoneevents.Emitter) Option {
	return func(s *Service) {
		if e != nil {
			s.events = e
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(zones store.ZoneRepository, warehouses store.WarehouseDirectory, opts ...Option) *Service {
	s := &Service{
		zones:      zones,
		warehouses: warehouses,
		locks:      newStripes(defaultStripes),
		leaseTTL:   DefaultLeaseTTL,
		maxCells:   DefaultMaxCells,
		events:     zoneevents.Noop{},
		logger:     slog.Default(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type GridResult struct {
	Results int          `json:"results"`
	Data    []model.Zone `json:"data"`
}

// Get lists a warehouse's zones sorted by name.
func (s *Service) Get(ctx context.Context, warehouseID string) (*GridResult, error) {
	if err := s.requireWarehouse(ctx, warehouseID); err != nil {
		return nil, err
	}
	zs, err := s.zones.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, apperr.Store("list grid", err)
	}
	return &GridResult{Results: len(zs), Data: nonNil(zs)}, nil
}

func (s *Service) requireWarehouse(ctx context.Context, warehouseID string) error {
	ok, err := s.warehouses.WarehouseExists(ctx, warehouseID)
	if err != nil {
		return apperr.Store("load warehouse", err)
	}
	if !ok {
		return apperr.NotFound("warehouse_not_found", "warehouse "+warehouseID+" not found")
	}
	return nil
}

func nonNil(zs []model.Zone) []model.Zone {
	if zs == nil {
		return []model.Zone{}
	}
	return zs
}
