package collection

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/repository"
)

// Patch is a partial update keyed by stored field name.
type Patch map[string]any

var immutableFields = map[string]bool{
	repository.FieldID:        true,
	repository.FieldOwnerID:   true,
	repository.FieldCreatedAt: true,
}

// normalizePatch checks the patch keys against the record's fields and
// re-encodes every value through the record's own codecs, so an amount
// sent as a JSON number is stored the same way a created amount is.
func normalizePatch[T any](patch Patch, fields map[string]bool) (map[string]any, error) {
	if len(patch) == 0 {
		return nil, apperror.ValidationFailed("", "patch has no fields")
	}

	for key := range patch {
		if immutableFields[key] {
			return nil, apperror.ValidationFailed(key, fmt.Sprintf("%s cannot be changed", key))
		}
		if !fields[key] {
			return nil, apperror.ValidationFailed(key, fmt.Sprintf("unknown field %s", key))
		}
	}

	raw, err := bson.Marshal(patch)
	if err != nil {
		return nil, apperror.ValidationFailed("", fmt.Sprintf("invalid patch: %v", err))
	}

	var decoded T
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		return nil, apperror.ValidationFailed("", fmt.Sprintf("invalid patch: %v", err))
	}

	encoded, err := bson.Marshal(&decoded)
	if err != nil {
		return nil, apperror.ValidationFailed("", fmt.Sprintf("invalid patch: %v", err))
	}
	doc := bson.Raw(encoded)

	out := make(map[string]any, len(patch))
	for key, value := range patch {
		// Keys dropped by omitempty keep the caller's (zero) value.
		if normalized, err := doc.LookupErr(key); err == nil {
			out[key] = normalized
			continue
		}
		out[key] = value
	}
	return out, nil
}

// mergeRecord applies fields on top of current, field by field.
func mergeRecord[T any](current T, fields map[string]any) (T, error) {
	var merged T

	raw, err := bson.Marshal(current)
	if err != nil {
		return merged, fmt.Errorf("encode record: %w", err)
	}

	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return merged, fmt.Errorf("decode record: %w", err)
	}
	for key, value := range fields {
		doc[key] = value
	}

	raw, err = bson.Marshal(doc)
	if err != nil {
		return merged, fmt.Errorf("encode merged record: %w", err)
	}
	if err := bson.Unmarshal(raw, &merged); err != nil {
		return merged, fmt.Errorf("decode merged record: %w", err)
	}
	return merged, nil
}

// fieldNames lists the stored field names of a struct type, following
// inline embeds.
func fieldNames(t reflect.Type) map[string]bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	out := make(map[string]bool)
	if t.Kind() != reflect.Struct {
		return out
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("bson"), ",")

		if strings.Contains(opts, "inline") {
			for nested := range fieldNames(f.Type) {
				out[nested] = true
			}
			continue
		}
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		out[name] = true
	}
	return out
}
