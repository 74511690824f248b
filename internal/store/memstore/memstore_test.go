package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/spatial"
	"github.com/mohammed-shakir/zonegrid/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		s, err := New(spatial.DefaultRes)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestNew_InvalidRes(t *testing.T) {
	if _, err := New(99); err == nil {
		t.Fatalf("expected error for res=99")
	}
}

func TestCanceledContext(t *testing.T) {
	s, _ := New(spatial.DefaultRes)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.FindContaining(ctx, model.Point{Lat: 30, Lng: 31}); !errors.Is(err, context.Canceled) {
		t.Fatalf("FindContaining err=%v want context.Canceled", err)
	}
	if _, err := s.FindDefault(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("FindDefault err=%v want context.Canceled", err)
	}
}
