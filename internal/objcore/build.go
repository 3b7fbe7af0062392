package objcore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Build recursively constructs typed objects from a document value.
//
// Mappings have every value built first; a mapping that then carries the
// discriminator key is turned into a new instance of the named type, decoded
// from the remaining keys. Sequences are built element-wise in order and
// scalars are returned unchanged. The input is never modified.
func (r *Registry) Build(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		return r.buildMap(v)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = val
		}
		return r.buildMap(m)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			built, err := r.Build(elem)
			if err != nil {
				return nil, err
			}
			out[i] = built
		}
		return out, nil
	default:
		return value, nil
	}
}

func (r *Registry) buildMap(m map[string]interface{}) (interface{}, error) {
	built := make(map[string]interface{}, len(m))
	for k, v := range m {
		b, err := r.Build(v)
		if err != nil {
			return nil, err
		}
		built[k] = b
	}

	key := r.discriminator()
	raw, ok := built[key]
	if !ok {
		return built, nil
	}
	delete(built, key)

	name, ok := raw.(string)
	if !ok {
		return nil, &ResolutionError{Name: fmt.Sprint(raw), Root: RootName, Reason: "discriminator is not a string"}
	}
	return r.construct(name, built)
}

func (r *Registry) construct(name string, fields map[string]interface{}) (interface{}, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, &ResolutionError{Name: name, Root: RootName, Reason: "unknown type"}
	}
	if e.typ == nil {
		return nil, &ResolutionError{Name: name, Root: RootName, Reason: "type is abstract"}
	}

	obj := reflect.New(e.typ).Interface()
	if err := decode(fields, obj); err != nil {
		return nil, fmt.Errorf("objcore: build %s: %w", name, err)
	}
	return obj, nil
}

// BuildAs builds value and asserts the result to T
func BuildAs[T any](r *Registry, value interface{}) (T, error) {
	var zero T
	obj, err := r.Build(value)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("objcore: built %T, want %T", obj, zero)
	}
	return t, nil
}

// Update assigns fields onto obj in place, keyed by yaml field names.
// It is a no-op when fields is empty.
func Update(obj interface{}, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := decode(fields, obj); err != nil {
		return fmt.Errorf("objcore: update %T: %w", obj, err)
	}
	return nil
}

// decode fills the struct behind out from input
func decode(input map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
