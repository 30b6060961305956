package docstore

import (
	"reflect"
	"strings"
)

type Op int

const (
	OpAll Op = iota
	OpEq
	OpGt
	OpLt
	OpIn
	OpAnd
	OpOr
)

// Filter is a predicate over document fields. Field names are dotted paths
// into nested maps ("participantA.userId"). The zero Filter matches every
// document.
type Filter struct {
	Op      Op
	Field   string
	Value   any
	Values  []any
	Filters []Filter
}

func All() Filter { return Filter{} }

func Eq(field string, v any) Filter { return Filter{Op: OpEq, Field: field, Value: v} }

func Gt(field string, v any) Filter { return Filter{Op: OpGt, Field: field, Value: v} }

func Lt(field string, v any) Filter { return Filter{Op: OpLt, Field: field, Value: v} }

func In(field string, vs ...any) Filter { return Filter{Op: OpIn, Field: field, Values: vs} }

func And(fs ...Filter) Filter { return Filter{Op: OpAnd, Filters: fs} }

func Or(fs ...Filter) Filter { return Filter{Op: OpOr, Filters: fs} }

// Path splits the dotted field name.
func (f Filter) Path() []string {
	return strings.Split(f.Field, ".")
}

func (f Filter) Match(data map[string]any) bool {
	switch f.Op {
	case OpAll:
		return true
	case OpAnd:
		for _, sub := range f.Filters {
			if !sub.Match(data) {
				return false
			}
		}
		return true
	case OpOr:
		for _, sub := range f.Filters {
			if sub.Match(data) {
				return true
			}
		}
		return false
	}

	v, ok := Lookup(data, f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return equal(v, f.Value)
	case OpGt:
		return compare(v, f.Value) > 0
	case OpLt:
		return compare(v, f.Value) < 0
	case OpIn:
		for _, candidate := range f.Values {
			if equal(v, candidate) {
				return true
			}
		}
		return false
	}
	return false
}

// Lookup resolves a dotted path inside nested maps.
func Lookup(data map[string]any, field string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers numerically and strings lexically. Values of
// different kinds compare as 0, which fails both Gt and Lt.
func compare(a, b any) int {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0
		}
		switch {
		case fa > fb:
			return 1
		case fa < fb:
			return -1
		}
		return 0
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb)
	}
	return 0
}
