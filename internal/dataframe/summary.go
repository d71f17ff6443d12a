package dataframe

import (
	"math"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

// ColumnSummary 单列统计
// Min/Max/Mean 仅数值列有值，Unique 仅非数值列统计
type ColumnSummary struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	NonNull int      `json:"non_null"`
	Unique  int      `json:"unique,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Mean    *float64 `json:"mean,omitempty"`
}

// Summary 逐列统计
func (f *Frame) Summary() []ColumnSummary {
	out := make([]ColumnSummary, f.schema.NumFields())
	for i, field := range f.schema.Fields() {
		out[i] = f.summarize(i, field)
	}
	return out
}

func (f *Frame) summarize(idx int, field arrow.Field) ColumnSummary {
	s := ColumnSummary{Name: field.Name, Type: field.Type.String()}

	var (
		numeric  = arrow.IsInteger(field.Type.ID()) || arrow.IsFloating(field.Type.ID())
		sum      float64
		lo, hi   = math.Inf(1), math.Inf(-1)
		distinct = map[string]struct{}{}
	)

	for _, rec := range f.records {
		col := rec.Column(idx)
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				continue
			}
			s.NonNull++
			if !numeric {
				distinct[col.ValueStr(i)] = struct{}{}
				continue
			}
			v, ok := floatAt(col, i)
			if !ok || math.IsNaN(v) {
				continue
			}
			sum += v
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	if numeric && s.NonNull > 0 && !math.IsInf(lo, 1) {
		mean := sum / float64(s.NonNull)
		s.Min, s.Max, s.Mean = &lo, &hi, &mean
	}
	if !numeric {
		s.Unique = len(distinct)
	}
	return s
}

func floatAt(col arrow.Array, i int) (float64, bool) {
	switch a := col.(type) {
	case *array.Int64:
		return float64(a.Value(i)), true
	case *array.Int32:
		return float64(a.Value(i)), true
	case *array.Uint64:
		return float64(a.Value(i)), true
	case *array.Float64:
		return a.Value(i), true
	case *array.Float32:
		return float64(a.Value(i)), true
	default:
		return 0, false
	}
}
