package domain

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// ParseSortDirection accepts "asc"/"desc" in any case; anything else is ascending.
func ParseSortDirection(value string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(value), string(SortDirectionDesc)) {
		return SortDirectionDesc
	}
	return SortDirectionAsc
}

// OrderTerm is one key of a multi-key sort.
type OrderTerm struct {
	Field     string
	Direction SortDirection
}

// Descending reports whether the term sorts high to low.
func (o OrderTerm) Descending() bool {
	return o.Direction == SortDirectionDesc
}

// ValuesEqual compares two field values the way a store would: numbers by value, times by
// instant, references by key, everything else structurally.
func ValuesEqual(a, b any) bool {
	a, b = StorageValue(a), StorageValue(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// CompareValues orders two field values. Nil sorts first; numbers, strings, booleans and
// times compare naturally; mixed kinds fall back to their textual form.
func CompareValues(a, b any) int {
	a, b = StorageValue(a), StorageValue(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
