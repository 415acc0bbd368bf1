package tool

import (
	"reflect"
	"strings"
)

// schemaForType builds a JSON-schema parameter map from a Go struct type.
//
// Recognized struct tags:
//
//	json:"name,omitempty"  field name; omitempty marks the field optional
//	desc:"..."             human-readable field description
//	enum:"a|b|c"           closed value set for string fields
func schemaForType[T any]() map[string]any {
	var zero T
	return schemaForReflectType(reflect.TypeOf(zero), reflect.StructTag(""))
}

func schemaForReflectType(t reflect.Type, tag reflect.StructTag) map[string]any {
	if t == nil {
		return map[string]any{"type": "object"}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
		if t == nil {
			return map[string]any{"type": "object"}
		}
	}

	out := map[string]any{}
	switch t.Kind() {
	case reflect.Struct:
		properties := map[string]any{}
		required := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			optional := false
			if jsonTag := field.Tag.Get("json"); jsonTag != "" {
				parts := strings.Split(jsonTag, ",")
				if parts[0] == "-" {
					continue
				}
				if strings.TrimSpace(parts[0]) != "" {
					name = strings.TrimSpace(parts[0])
				}
				optional = contains(parts[1:], "omitempty")
			}
			if !optional {
				required = append(required, name)
			}
			properties[name] = schemaForReflectType(field.Type, field.Tag)
		}
		out["type"] = "object"
		out["properties"] = properties
		if len(required) > 0 {
			out["required"] = required
		}
	case reflect.String:
		out["type"] = "string"
		if enum := splitEnumTag(tag.Get("enum")); len(enum) > 0 {
			out["enum"] = enum
		}
	case reflect.Bool:
		out["type"] = "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out["type"] = "integer"
	case reflect.Float32, reflect.Float64:
		out["type"] = "number"
	case reflect.Slice, reflect.Array:
		out["type"] = "array"
		out["items"] = schemaForReflectType(t.Elem(), reflect.StructTag(""))
	case reflect.Map:
		out["type"] = "object"
	default:
		out["type"] = "string"
	}
	if desc := strings.TrimSpace(tag.Get("desc")); desc != "" {
		out["description"] = desc
	}
	return out
}

func splitEnumTag(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if strings.TrimSpace(item) == target {
			return true
		}
	}
	return false
}
