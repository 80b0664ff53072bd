package dataapi

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata/types"

	"redshift-orders/internal/domain"
)

func columns(meta []types.ColumnMetadata) []domain.Column {
	cols := make([]domain.Column, 0, len(meta))
	for _, m := range meta {
		cols = append(cols, domain.Column{
			Name:     aws.ToString(m.Name),
			TypeName: aws.ToString(m.TypeName),
		})
	}
	return cols
}

func row(record []types.Field) domain.Row {
	r := make(domain.Row, len(record))
	for i, f := range record {
		r[i] = fieldValue(f)
	}
	return r
}

// fieldValue unwraps the Field union into a plain Go value.
func fieldValue(f types.Field) any {
	switch v := f.(type) {
	case *types.FieldMemberStringValue:
		return v.Value
	case *types.FieldMemberLongValue:
		return v.Value
	case *types.FieldMemberDoubleValue:
		return v.Value
	case *types.FieldMemberBooleanValue:
		return v.Value
	case *types.FieldMemberBlobValue:
		return v.Value
	case *types.FieldMemberIsNull:
		return nil
	default:
		return nil
	}
}
