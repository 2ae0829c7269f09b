package fetcher

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// NewRowDecoder returns a Decoder that builds records against schema,
// reading each row's values by field name and coercing JSON-decoded values
// (string, float64, bool, nil) into the field's Arrow type. It is the
// general-purpose decoder used for every upstream_api_id that doesn't need
// bespoke response shaping.
func NewRowDecoder(mem memory.Allocator, sch *arrow.Schema) Decoder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return func(rows []Row) (arrow.Record, error) {
		b := array.NewRecordBuilder(mem, sch)
		defer b.Release()

		for _, row := range rows {
			for i, field := range sch.Fields() {
				if err := appendJSONValue(b.Field(i), field, row[field.Name]); err != nil {
					return nil, fmt.Errorf("field %s: %w", field.Name, err)
				}
			}
		}
		return b.NewRecord(), nil
	}
}

func appendJSONValue(builder array.Builder, field arrow.Field, v any) error {
	if v == nil {
		builder.AppendNull()
		return nil
	}
	switch field.Type.ID() {
	case arrow.STRING:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		builder.(*array.StringBuilder).Append(s)
	case arrow.INT64:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
		builder.(*array.Int64Builder).Append(int64(f))
	case arrow.FLOAT64:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
		builder.(*array.Float64Builder).Append(f)
	case arrow.BOOL:
		bl, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		builder.(*array.BooleanBuilder).Append(bl)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type)
	}
	return nil
}
