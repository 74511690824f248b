package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("generate: %w", Conflict("grid_exists", "warehouse already has zones"))

	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict kind, got %v", err)
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("conflict must not match validation")
	}
	if got := CodeOf(err); got != "grid_exists" {
		t.Fatalf("code=%q want grid_exists", got)
	}
}

func TestStore_DeadlineBecomesUnavailable(t *testing.T) {
	err := Store("zones count", context.DeadlineExceeded)
	if KindOf(err) != KindUnavailable {
		t.Fatalf("kind=%v want unavailable", KindOf(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("original cause must stay reachable")
	}

	plain := Store("zones count", errors.New("boom"))
	if KindOf(plain) != KindInternal {
		t.Fatalf("kind=%v want internal", KindOf(plain))
	}

	typed := NotFound("zone_not_found", "zone not found")
	if Store("zones get", typed) != typed {
		t.Fatalf("typed errors must pass through unchanged")
	}
}
