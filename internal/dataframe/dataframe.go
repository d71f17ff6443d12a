// Package dataframe 把上传的 CSV 数据解析成列式表格，并生成给模型看的数据概要
package dataframe

import (
	"bytes"
	stdcsv "encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ErrCSVParse CSV 无法解析
var ErrCSVParse = errors.New("csv parse error")

const chunkRows = 1024

var nullValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None"}

// Frame 解析后的表格
type Frame struct {
	schema  *arrow.Schema
	records []arrow.Record
	rows    int
}

// ParseCSV 读取带表头的 CSV，自动推断列类型
// 推断失败（同一列类型不一致）时所有列按字符串读取
func ParseCSV(r io.Reader) (*Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCSVParse, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCSVParse)
	}
	// arrow 的推断读取器在没有数据行时无法构建 record
	if header, ok := headerOnly(data); ok {
		return emptyFrame(header), nil
	}

	frame, schema, err := read(data)
	if err == nil {
		return frame, nil
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: %v", ErrCSVParse, err)
	}

	types := make(map[string]arrow.DataType, schema.NumFields())
	for _, f := range schema.Fields() {
		types[f.Name] = arrow.BinaryTypes.String
	}
	frame, _, err = read(data, csv.WithColumnTypes(types))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCSVParse, err)
	}
	return frame, nil
}

func read(data []byte, extra ...csv.Option) (*Frame, *arrow.Schema, error) {
	opts := append([]csv.Option{
		csv.WithHeader(true),
		csv.WithChunk(chunkRows),
		csv.WithAllocator(memory.NewGoAllocator()),
		csv.WithNullReader(true, nullValues...),
		csv.WithLazyQuotes(true),
	}, extra...)

	rdr := csv.NewInferringReader(bytes.NewReader(data), opts...)
	defer rdr.Release()

	f := &Frame{}
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		f.records = append(f.records, rec)
		f.rows += int(rec.NumRows())
	}
	if err := rdr.Err(); err != nil {
		f.Release()
		return nil, rdr.Schema(), err
	}

	f.schema = rdr.Schema()
	if f.schema == nil || f.schema.NumFields() == 0 {
		f.Release()
		return nil, nil, errors.New("missing header row")
	}
	return f, f.schema, nil
}

// headerOnly 判断输入是否只有表头
func headerOnly(data []byte) ([]string, bool) {
	r := stdcsv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, false
	}
	if _, err := r.Read(); err != io.EOF {
		return nil, false
	}
	return header, true
}

// emptyFrame 没有数据行的表格，所有列按字符串处理
func emptyFrame(names []string) *Frame {
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	return &Frame{schema: arrow.NewSchema(fields, nil)}
}

// FromRecords 由对象数组构建表格，列按名称排序
func FromRecords(records []map[string]interface{}) (*Frame, error) {
	keys := map[string]struct{}{}
	for _, rec := range records {
		for k := range rec {
			keys[k] = struct{}{}
		}
	}
	names := sortedKeys(keys)

	cols := make(map[string][]interface{}, len(names))
	for _, name := range names {
		col := make([]interface{}, len(records))
		for i, rec := range records {
			col[i] = rec[name]
		}
		cols[name] = col
	}
	return FromColumns(cols)
}

// FromColumns 由列字典构建表格，列按名称排序，短列以空值补齐
func FromColumns(columns map[string][]interface{}) (*Frame, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrCSVParse)
	}
	keys := make(map[string]struct{}, len(columns))
	rows := 0
	for k, v := range columns {
		keys[k] = struct{}{}
		if len(v) > rows {
			rows = len(v)
		}
	}
	names := sortedKeys(keys)
	if rows == 0 {
		return emptyFrame(names), nil
	}

	mem := memory.NewGoAllocator()
	fields := make([]arrow.Field, len(names))
	arrs := make([]arrow.Array, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}

		b := array.NewStringBuilder(mem)
		col := columns[name]
		for j := 0; j < rows; j++ {
			if j >= len(col) || col[j] == nil {
				b.AppendNull()
				continue
			}
			b.Append(stringify(col[j]))
		}
		arrs[i] = b.NewArray()
		b.Release()
	}

	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrs, int64(rows))
	defer rec.Release()
	for _, a := range arrs {
		a.Release()
	}

	// 统一走 CSV 解析，保证类型推断一致
	var buf bytes.Buffer
	w := csv.NewWriter(&buf, schema, csv.WithHeader(true))
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCSVParse, err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCSVParse, err)
	}
	return ParseCSV(&buf)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64, float32, int, int64, int32, bool, json.Number:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Release 释放底层内存
func (f *Frame) Release() {
	for _, rec := range f.records {
		rec.Release()
	}
	f.records = nil
}

// Rows 行数
func (f *Frame) Rows() int { return f.rows }

// Columns 列名，保持原始顺序
func (f *Frame) Columns() []string {
	names := make([]string, f.schema.NumFields())
	for i, field := range f.schema.Fields() {
		names[i] = field.Name
	}
	return names
}

// Head 以 CSV 文本返回前 n 行（含表头）
func (f *Frame) Head(n int) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf, f.schema, csv.WithHeader(true), csv.WithNullWriter(""))

	left := int64(n)
	for _, rec := range f.records {
		if left <= 0 {
			break
		}
		end := rec.NumRows()
		if end > left {
			end = left
		}
		slice := rec.NewSlice(0, end)
		err := w.Write(slice)
		slice.Release()
		if err != nil {
			return "", err
		}
		left -= end
	}
	// 没有数据行时也输出表头
	if len(f.records) == 0 || n <= 0 {
		return strings.Join(f.Columns(), ",") + "\n", nil
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Describe 生成发给模型的数据概要
func (f *Frame) Describe(sampleRows int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The dataset has %d rows and %d columns.\n\nColumns:\n", f.rows, f.schema.NumFields())
	for _, col := range f.Summary() {
		fmt.Fprintf(&sb, "- %s (%s): %d non-null", col.Name, col.Type, col.NonNull)
		if col.Mean != nil {
			fmt.Fprintf(&sb, ", min=%g, max=%g, mean=%.4g", *col.Min, *col.Max, *col.Mean)
		}
		if col.Unique > 0 {
			fmt.Fprintf(&sb, ", %d unique", col.Unique)
		}
		sb.WriteByte('\n')
	}

	if sampleRows > 0 && f.rows > 0 {
		if head, err := f.Head(sampleRows); err == nil {
			fmt.Fprintf(&sb, "\nFirst %d rows (CSV):\n%s", min(sampleRows, f.rows), head)
		}
	}
	return sb.String()
}
