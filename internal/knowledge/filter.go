package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownOperator is returned for filter operators outside the supported set.
var ErrUnknownOperator = errors.New("unknown filter operator")

// Filter matches passage metadata. A plain value means equality:
//
//	{"department": "industrial"}
//	{"course_code": {"$in": ["EECE 230", "EECE 231"]}}
//
// Supported operators: $eq, $ne, $in, $nin, $contains, $gt, $gte, $lt, $lte.
// When the metadata value is a list, $eq and $in match any element.
type Filter map[string]any

// Validate reports unknown operators before a query runs.
func (f Filter) Validate() error {
	for field, cond := range f {
		ops, ok := cond.(map[string]any)
		if !ok {
			continue
		}
		for op := range ops {
			switch op {
			case "$eq", "$ne", "$in", "$nin", "$contains", "$gt", "$gte", "$lt", "$lte":
			default:
				return fmt.Errorf("%w %q on field %q", ErrUnknownOperator, op, field)
			}
		}
	}
	return nil
}

// Match reports whether meta satisfies every condition.
func (f Filter) Match(meta map[string]any) (bool, error) {
	for field, cond := range f {
		got, present := meta[field]
		ops, isOps := cond.(map[string]any)
		if !isOps {
			ops = map[string]any{"$eq": cond}
		}
		for op, want := range ops {
			ok, err := evalOp(op, got, present, want)
			if err != nil {
				return false, fmt.Errorf("field %q: %w", field, err)
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func evalOp(op string, got any, present bool, want any) (bool, error) {
	switch op {
	case "$eq":
		return present && anyEqual(got, want), nil
	case "$ne":
		return !present || !anyEqual(got, want), nil
	case "$in":
		list, ok := asList(want)
		if !ok {
			return false, fmt.Errorf("$in expects a list")
		}
		for _, w := range list {
			if present && anyEqual(got, w) {
				return true, nil
			}
		}
		return false, nil
	case "$nin":
		list, ok := asList(want)
		if !ok {
			return false, fmt.Errorf("$nin expects a list")
		}
		for _, w := range list {
			if present && anyEqual(got, w) {
				return false, nil
			}
		}
		return true, nil
	case "$contains":
		if !present {
			return false, nil
		}
		if list, ok := asList(got); ok {
			for _, g := range list {
				if valueEqual(g, want) {
					return true, nil
				}
			}
			return false, nil
		}
		return strings.Contains(strings.ToLower(fmt.Sprint(got)), strings.ToLower(fmt.Sprint(want))), nil
	case "$gt", "$gte", "$lt", "$lte":
		g, ok1 := asFloat(got)
		w, ok2 := asFloat(want)
		if !present || !ok1 || !ok2 {
			return false, nil
		}
		switch op {
		case "$gt":
			return g > w, nil
		case "$gte":
			return g >= w, nil
		case "$lt":
			return g < w, nil
		default:
			return g <= w, nil
		}
	default:
		return false, fmt.Errorf("%w %q", ErrUnknownOperator, op)
	}
}

// anyEqual compares got against want, treating a list value as matching
// when any element matches.
func anyEqual(got, want any) bool {
	if list, ok := asList(got); ok {
		for _, g := range list {
			if valueEqual(g, want) {
				return true
			}
		}
		return false
	}
	return valueEqual(got, want)
}

func valueEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
