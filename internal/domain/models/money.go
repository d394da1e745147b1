package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Amount is a monetary value. It is stored as BSON Decimal128 and
// rendered to JSON as a decimal string.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a decimal value.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// ParseAmount parses a decimal string such as "150.25".
func ParseAmount(value string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return Amount{Decimal: d}, nil
}

// MustAmount is ParseAmount for literals; it panics on malformed input.
func MustAmount(value string) Amount {
	a, err := ParseAmount(value)
	if err != nil {
		panic(err)
	}
	return a
}

// Negative reports whether the amount is below zero.
func (a Amount) Negative() bool {
	return a.Decimal.IsNegative()
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(a.Decimal.String())
	if err != nil {
		return 0, nil, fmt.Errorf("encode amount %s: %w", a.Decimal.String(), err)
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler. Besides Decimal128
// it accepts strings and plain numbers written by other clients.
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}

	switch t {
	case bsontype.Decimal128:
		d128, ok := raw.Decimal128OK()
		if !ok {
			return fmt.Errorf("decode amount: malformed decimal128")
		}
		d, err := decimal.NewFromString(d128.String())
		if err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		a.Decimal = d
	case bsontype.String:
		d, err := decimal.NewFromString(raw.StringValue())
		if err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		a.Decimal = d
	case bsontype.Double:
		a.Decimal = decimal.NewFromFloat(raw.Double())
	case bsontype.Int32:
		a.Decimal = decimal.NewFromInt32(raw.Int32())
	case bsontype.Int64:
		a.Decimal = decimal.NewFromInt(raw.Int64())
	case bsontype.Null, bsontype.Undefined:
		a.Decimal = decimal.Zero
	default:
		return fmt.Errorf("decode amount: unsupported bson type %s", t)
	}
	return nil
}

// BRL renders the amount in Brazilian currency notation, e.g. "R$ 1.250,75".
func (a Amount) BRL() string {
	sign := ""
	if a.Negative() {
		sign = "-"
	}
	fixed := a.Decimal.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(digit)
	}
	return fmt.Sprintf("%sR$ %s,%s", sign, grouped.String(), cents)
}
