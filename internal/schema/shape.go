// Package schema holds the declarative shape descriptors the gateway
// validates upstream responses against, and the registry that associates
// endpoint patterns with them.
package schema

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// FieldType tags the expected JSON type of a field.
type FieldType string

const (
	TypeInt      FieldType = "integer"
	TypeString   FieldType = "string"
	TypeFloat    FieldType = "number"
	TypeBool     FieldType = "boolean"
	TypeDateTime FieldType = "datetime"
	TypeAny      FieldType = "any"
)

// Field describes one expected top-level field.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Shape is the expected response shape for an endpoint: an ordered list of
// fields, constructed once at registration time.
type Shape struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// FieldError locates a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result is the outcome of validating a payload against a shape. The gateway
// branches on Valid rather than on a raised error.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// ErrorFields returns the names of all offending fields.
func (r Result) ErrorFields() []string {
	fields := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

// ErrorText renders the failure detail as a single string, for event records
// and reasoning prompts.
func (r Result) ErrorText() string {
	if r.Valid {
		return ""
	}
	text := ""
	for i, e := range r.Errors {
		if i > 0 {
			text += "; "
		}
		text += e.String()
	}
	return text
}

// Validate checks a raw JSON object against the shape. A payload that is not
// a JSON object fails with a single synthetic error.
func Validate(raw []byte, shape *Shape) Result {
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return Result{Errors: []FieldError{{Field: "$", Message: "payload is not a JSON object"}}}
	}

	var errs []FieldError
	for _, field := range shape.Fields {
		value := parsed.Get(field.Name)
		if !value.Exists() {
			if field.Required {
				errs = append(errs, FieldError{Field: field.Name, Message: "field required"})
			}
			continue
		}
		if value.Type == gjson.Null {
			if field.Required {
				errs = append(errs, FieldError{Field: field.Name, Message: "field is null"})
			}
			continue
		}
		if msg := checkType(value, field.Type); msg != "" {
			errs = append(errs, FieldError{Field: field.Name, Message: msg})
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func checkType(value gjson.Result, want FieldType) string {
	switch want {
	case TypeAny:
		return ""
	case TypeInt:
		if value.Type != gjson.Number {
			return fmt.Sprintf("expected integer, got %s", jsonTypeName(value))
		}
		if value.Num != float64(int64(value.Num)) {
			return "expected integer, got fractional number"
		}
	case TypeFloat:
		if value.Type != gjson.Number {
			return fmt.Sprintf("expected number, got %s", jsonTypeName(value))
		}
	case TypeString:
		if value.Type != gjson.String {
			return fmt.Sprintf("expected string, got %s", jsonTypeName(value))
		}
	case TypeBool:
		if value.Type != gjson.True && value.Type != gjson.False {
			return fmt.Sprintf("expected boolean, got %s", jsonTypeName(value))
		}
	case TypeDateTime:
		if value.Type != gjson.String {
			return fmt.Sprintf("expected datetime string, got %s", jsonTypeName(value))
		}
		if _, err := time.Parse(time.RFC3339, value.Str); err != nil {
			return "expected ISO-8601 datetime"
		}
	}
	return ""
}

func jsonTypeName(value gjson.Result) string {
	switch value.Type {
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	default:
		if value.IsArray() {
			return "array"
		}
		if value.IsObject() {
			return "object"
		}
		return "unknown"
	}
}
