package gate

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"Empleaido-Core/internal/skill"
)

// checkInput 返回第一个缺失或类型错误的字段及其描述。
// 先按 required 的声明顺序检查缺失，再按字段名排序检查类型。
func checkInput(input map[string]any, schema *skill.Schema) (string, string) {
	if schema == nil {
		return "", ""
	}
	for _, field := range schema.Required {
		v, ok := input[field]
		if !ok || isEmpty(v) {
			return field, "Missing required field: " + field
		}
	}
	for _, field := range schema.PropertyNames() {
		v, ok := input[field]
		if !ok || v == nil {
			continue
		}
		want := schema.Properties[field].Type
		if want == "" {
			continue
		}
		if !matches(v, want) {
			return field, fmt.Sprintf("Field %s must be %s, got %s", field, want, typeOf(v))
		}
	}
	return "", ""
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.IsNil() || rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func matches(v any, want skill.FieldType) bool {
	got := typeOf(v)
	switch want {
	case skill.TypeNumber:
		return got == "number" || got == "integer"
	case skill.TypeInteger:
		return got == "integer"
	default:
		return got == string(want)
	}
}

// typeOf 返回值的 JSON 类型名。整数值报告为 integer。
func typeOf(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case float64:
		return floatType(t)
	case float32:
		return floatType(float64(t))
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Pointer:
		if rv.IsNil() {
			return "null"
		}
		return typeOf(rv.Elem().Interface())
	}
	return rv.Kind().String()
}

func floatType(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return "integer"
	}
	return "number"
}
