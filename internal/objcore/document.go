package objcore

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ToDocument serializes a registered object to a mapping that carries its
// discriminator. Nested registered objects become nested documents.
func (r *Registry) ToDocument(obj interface{}) (map[string]interface{}, error) {
	name, ok := r.NameOf(obj)
	if !ok {
		return nil, fmt.Errorf("objcore: %T is not registered", obj)
	}
	v := reflect.Indirect(reflect.ValueOf(obj))
	if !v.IsValid() {
		return nil, fmt.Errorf("objcore: nil %T", obj)
	}

	doc := map[string]interface{}{r.discriminator(): name}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := fieldKey(f)
		if key == "-" {
			continue
		}
		val, err := r.toValue(v.Field(i))
		if err != nil {
			return nil, fmt.Errorf("objcore: %s.%s: %w", name, f.Name, err)
		}
		doc[key] = val
	}
	return doc, nil
}

func (r *Registry) toValue(v reflect.Value) (interface{}, error) {
	switch v.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return r.toValue(v.Elem())
	case reflect.Struct:
		if _, ok := v.Interface().(time.Time); ok {
			return v.Interface(), nil
		}
		if _, ok := r.NameOf(v.Interface()); ok {
			return r.ToDocument(v.Interface())
		}
		return v.Interface(), nil
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil
		}
		out := make([]interface{}, v.Len())
		for i := range out {
			elem, err := r.toValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			elem, err := r.toValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(iter.Key().Interface())] = elem
		}
		return out, nil
	default:
		return v.Interface(), nil
	}
}

// fieldKey returns the document key of a struct field: its yaml tag name,
// or the lowercased field name when untagged.
func fieldKey(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return strings.ToLower(f.Name)
}
