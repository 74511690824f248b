package grid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
	"github.com/mohammed-shakir/zonegrid/internal/logger"
	"github.com/mohammed-shakir/zonegrid/internal/zoneevents"
)

const ActionUpdate = "update"

// Edit is one entry of a grid edit batch. Fields keeps the raw payload so a
// key sent as null can be told apart from a key that was not sent.
type Edit struct {
	ZoneID string
	Action string
	Fields map[string]json.RawMessage
}

func (e *Edit) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Edit{Fields: raw}
	if v, ok := raw["zoneId"]; ok {
		if err := json.Unmarshal(v, &e.ZoneID); err != nil {
			return fmt.Errorf("zoneId: %w", err)
		}
	}
	if v, ok := raw["action"]; ok {
		if err := json.Unmarshal(v, &e.Action); err != nil {
			return fmt.Errorf("action: %w", err)
		}
	}
	delete(raw, "zoneId")
	delete(raw, "action")
	return nil
}

// NewUpdate builds an update edit from Go values; a nil value sends null.
func NewUpdate(zoneID string, fields map[string]any) (Edit, error) {
	e := Edit{ZoneID: zoneID, Action: ActionUpdate, Fields: make(map[string]json.RawMessage, len(fields))}
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return Edit{}, fmt.Errorf("field %s: %w", k, err)
		}
		e.Fields[k] = b
	}
	return e, nil
}

type UpdateResult struct {
	ModifiedCount int          `json:"modifiedCount"`
	Data          []model.Zone `json:"data"`
}

// BulkError reports a bulk write that failed after Modified documents changed.
type BulkError struct {
	Modified int
	Err      error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk update failed after %d modified: %v", e.Modified, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// Update applies a batch of per-zone edits. Every referenced zone must belong
// to the warehouse or nothing is written.
func (s *Service) Update(ctx context.Context, warehouseID string, edits []Edit) (*UpdateResult, error) {
	if len(edits) == 0 {
		return nil, apperr.Validation("empty_edits", "edits must be a non-empty array")
	}
	ctx = logger.WithWarehouse(ctx, warehouseID)
	if err := s.requireWarehouse(ctx, warehouseID); err != nil {
		return nil, err
	}

	var updates []Edit
	for _, e := range edits {
		if strings.TrimSpace(e.Action) != ActionUpdate {
			continue
		}
		if e.ZoneID == "" {
			return nil, apperr.Validation("zone_id_required", "every update edit needs a zoneId")
		}
		updates = append(updates, e)
	}

	owned, err := s.zones.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, apperr.Store("list grid", err)
	}
	ids := make(map[string]struct{}, len(owned))
	for _, z := range owned {
		ids[z.ID] = struct{}{}
	}
	for _, e := range updates {
		if _, ok := ids[e.ZoneID]; !ok {
			observability.IncGridEdit("rejected")
			return nil, apperr.Conflict("zone_not_in_warehouse",
				fmt.Sprintf("zone %s does not belong to warehouse %s", e.ZoneID, warehouseID))
		}
	}

	patches := make([]model.ZonePatch, 0, len(updates))
	for _, e := range updates {
		p, err := buildPatch(e)
		if err != nil {
			observability.IncGridEdit("rejected")
			return nil, err
		}
		if p.Empty() {
			continue
		}
		patches = append(patches, p)
	}

	modified := 0
	if len(patches) > 0 {
		modified, err = s.zones.BulkPartialUpdate(ctx, patches)
		if err != nil {
			observability.IncGridEdit("failed")
			s.logger.ErrorContext(ctx, "grid bulk update failed", "modified", modified, "err", err)
			return nil, &BulkError{Modified: modified, Err: apperr.Store("bulk update", err)}
		}
		changed := make([]string, len(patches))
		for i, p := range patches {
			changed[i] = p.ZoneID
		}
		s.events.Publish(zoneevents.Event{Op: zoneevents.GridUpdated, WarehouseID: warehouseID, ZoneIDs: changed, Count: modified})
	}
	observability.IncGridEdit("applied")

	zs, err := s.zones.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, apperr.Store("list grid", err)
	}
	return &UpdateResult{ModifiedCount: modified, Data: nonNil(zs)}, nil
}

func buildPatch(e Edit) (model.ZonePatch, error) {
	p := model.ZonePatch{ZoneID: e.ZoneID}

	if raw, ok := e.Fields["active"]; ok {
		var b bool
		if json.Unmarshal(raw, &b) == nil && !isNull(raw) {
			p.Active = &b
		}
	}
	if raw, ok := e.Fields["name"]; ok {
		var name string
		if json.Unmarshal(raw, &name) == nil && !isNull(raw) {
			p.Name = &name
		}
	}
	if raw, ok := e.Fields["shippingFee"]; ok {
		fee, set, err := parseFee(raw)
		if err != nil {
			return model.ZonePatch{}, apperr.Validation("invalid_shipping_fee",
				fmt.Sprintf("zone %s: %v", e.ZoneID, err))
		}
		if set {
			p.ShippingFee = &fee
		} else {
			p.UnsetShippingFee = true
		}
	}
	if raw, ok := e.Fields["areaName"]; ok {
		var area string
		switch {
		case isNull(raw):
			p.UnsetAreaName = true
		case json.Unmarshal(raw, &area) == nil:
			area = strings.ToLower(strings.TrimSpace(area))
			if area == "" {
				p.UnsetAreaName = true
			} else {
				p.AreaName = &area
			}
		}
	}
	return p, nil
}

// parseFee reads a shippingFee value. null, "" and 0 unset the fee.
func parseFee(raw json.RawMessage) (float64, bool, error) {
	if isNull(raw) {
		return 0, false, nil
	}
	var v float64
	var s string
	switch {
	case json.Unmarshal(raw, &v) == nil:
	case json.Unmarshal(raw, &s) == nil:
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("shippingFee %q is not a number", s)
		}
		v = f
	default:
		return 0, false, fmt.Errorf("shippingFee must be a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false, fmt.Errorf("shippingFee must be a finite non-negative number")
	}
	if v == 0 {
		return 0, false, nil
	}
	return v, true, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
