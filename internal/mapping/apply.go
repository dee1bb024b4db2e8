// Package mapping applies a SchemaMapping to raw JSON payloads. It is shared
// by the healing engine (to verify a candidate mapping repairs the triggering
// response) and the proxy (to repair live responses from cache).
package mapping

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

// Apply transforms a raw JSON object according to the mapping. The result
// starts as the original object; for each field mapping whose source field is
// present, the (optionally transformed) value is written under the target
// field, overwriting any existing key. Unmapped fields pass through
// unchanged. A transform that fails on a value substitutes the untransformed
// original and logs a warning; it never aborts the application.
func Apply(raw []byte, m *domain.SchemaMapping) []byte {
	original := gjson.ParseBytes(raw)
	result := raw

	for _, fm := range m.FieldMappings {
		source := original.Get(escapePath(fm.SourceField))
		if !source.Exists() {
			continue
		}

		value := source.Value()
		if fm.Transform != nil {
			transformed, err := applyTransform(source, *fm.Transform)
			if err != nil {
				slog.Warn("transform failed, using original value",
					slog.String("transform", string(*fm.Transform)),
					slog.String("source_field", fm.SourceField),
					slog.String("error", err.Error()),
				)
			} else {
				value = transformed
			}
		}

		var err error
		result, err = sjson.SetBytes(result, escapePath(fm.TargetField), value)
		if err != nil {
			slog.Warn("failed to set mapped field",
				slog.String("target_field", fm.TargetField),
				slog.String("error", err.Error()),
			)
		}
	}

	return result
}

// ApplyPayload applies the mapping to a JSON object, or to every element of a
// JSON array of objects. Anything else is returned unchanged.
func ApplyPayload(raw []byte, m *domain.SchemaMapping) []byte {
	parsed := gjson.ParseBytes(raw)

	if parsed.IsObject() {
		return Apply(raw, m)
	}

	if parsed.IsArray() {
		result := []byte("[]")
		parsed.ForEach(func(_, item gjson.Result) bool {
			healed := Apply([]byte(item.Raw), m)
			result, _ = sjson.SetRawBytes(result, "-1", healed)
			return true
		})
		return result
	}

	return raw
}

// applyTransform converts a JSON value per the transform token. Unknown
// tokens fall through to the original value.
func applyTransform(value gjson.Result, t domain.Transform) (any, error) {
	switch t {
	case domain.TransformToInt:
		switch value.Type {
		case gjson.Number:
			return int64(value.Num), nil
		case gjson.String:
			n, err := strconv.ParseInt(strings.TrimSpace(value.Str), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to integer", value.Str)
			}
			return n, nil
		case gjson.True:
			return int64(1), nil
		case gjson.False:
			return int64(0), nil
		}
		return nil, fmt.Errorf("cannot convert %s to integer", value.Type)

	case domain.TransformToStr:
		return value.String(), nil

	case domain.TransformToFloat:
		switch value.Type {
		case gjson.Number:
			return value.Num, nil
		case gjson.String:
			f, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to float", value.Str)
			}
			return f, nil
		case gjson.True:
			return float64(1), nil
		case gjson.False:
			return float64(0), nil
		}
		return nil, fmt.Errorf("cannot convert %s to float", value.Type)

	case domain.TransformToBool:
		switch value.Type {
		case gjson.True:
			return true, nil
		case gjson.False:
			return false, nil
		case gjson.Number:
			return value.Num != 0, nil
		case gjson.String:
			return value.Str != "", nil
		}
		return nil, fmt.Errorf("cannot convert %s to boolean", value.Type)

	case domain.TransformParseDate:
		if value.Type != gjson.String {
			return nil, fmt.Errorf("cannot parse %s as date", value.Type)
		}
		parsed, err := parseISODate(value.Str)
		if err != nil {
			return nil, err
		}
		return parsed.Format(time.RFC3339), nil
	}

	return value.Value(), nil
}

func parseISODate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as ISO-8601 date", s)
}

// escapePath escapes sjson path metacharacters so field names containing
// dots are treated as literal keys.
func escapePath(field string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return replacer.Replace(field)
}
