package grid

import (
	"context"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 64

// stripes serializes work per key using a fixed set of slots picked by hash.
// Unrelated keys may share a slot; waiting honours ctx.
type stripes struct {
	slots []chan struct{}
}

func newStripes(n int) *stripes {
	if n <= 0 {
		n = defaultStripes
	}
	s := &stripes{slots: make([]chan struct{}, n)}
	for i := range s.slots {
		s.slots[i] = make(chan struct{}, 1)
	}
	return s
}

func (s *stripes) lock(ctx context.Context, key string) (func(), error) {
	ch := s.slots[xxhash.Sum64String(key)%uint64(len(s.slots))]
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
