package event

import (
	"reflect"
	"strings"
)

type DefaultFieldExtractor struct{}

// ExtractFields picks the named json fields from a struct, descending into embedded structs.
func (e *DefaultFieldExtractor) ExtractFields(obj interface{}, fields []string) map[string]interface{} {
	result := make(map[string]interface{})
	if obj == nil || len(fields) == 0 {
		return result
	}

	val := reflect.ValueOf(obj)
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return result
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return result
	}
	collect(val, fields, result)
	return result
}

func collect(val reflect.Value, fields []string, out map[string]interface{}) {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collect(val.Field(i), fields, out)
			continue
		}

		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		if name != "-" && contains(fields, name) {
			out[name] = val.Field(i).Interface()
		}
	}
}

// ExtractChanges returns {"field": {"old": .., "new": ..}} for every listed field that differs.
func (e *DefaultFieldExtractor) ExtractChanges(old, new interface{}, fields []string) map[string]interface{} {
	changes := make(map[string]interface{})
	if old == nil || new == nil || len(fields) == 0 {
		return changes
	}

	oldFields := e.ExtractFields(old, fields)
	newFields := e.ExtractFields(new, fields)

	for field, newValue := range newFields {
		oldValue, exists := oldFields[field]
		if exists && !reflect.DeepEqual(oldValue, newValue) {
			changes[field] = map[string]interface{}{
				"old": oldValue,
				"new": newValue,
			}
		}
	}
	return changes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
