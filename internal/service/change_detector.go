package service

import (
	"reflect"
	"time"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
)

// ChangeDetector compares persisted and incoming field sets over an entity's mutable fields.
type ChangeDetector struct{}

// NewChangeDetector constructs a ChangeDetector.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{}
}

// Diff returns the mutable fields whose incoming value differs from the persisted one.
// Fields absent from incoming are never reported.
func (d *ChangeDetector) Diff(desc models.EntityDescriptor, existing, incoming models.Fields) models.Fields {
	changes := models.Fields{}
	for _, field := range desc.MutableFields {
		next, ok := incoming[field]
		if !ok {
			continue
		}
		if !valuesEqual(existing[field], next) {
			changes[field] = next
		}
	}
	return changes
}

// NeedsUpdate reports whether any mutable field changed.
func (d *ChangeDetector) NeedsUpdate(desc models.EntityDescriptor, existing, incoming models.Fields) bool {
	return len(d.Diff(desc, existing, incoming)) > 0
}

func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return ai == bi
		}
	}
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

// asInt64 keeps integer comparisons exact; ids above 2^53 do not survive float64.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
