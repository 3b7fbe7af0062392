package objcore

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type loadOptions struct {
	section          string
	addDiscriminator bool
	forced           string
}

// LoadOption configures Load and LoadDocument
type LoadOption func(*loadOptions)

// WithSection descends into the named top-level section before building
func WithSection(name string) LoadOption {
	return func(o *loadOptions) { o.section = name }
}

// WithoutDefaultDiscriminator disables injecting the root name as the
// discriminator when the document has none.
func WithoutDefaultDiscriminator() LoadOption {
	return func(o *loadOptions) { o.addDiscriminator = false }
}

// WithDiscriminator overrides the document's discriminator unconditionally
func WithDiscriminator(name string) LoadOption {
	return func(o *loadOptions) { o.forced = name }
}

// Load reads a YAML document from path and builds it under root.
// ${VAR} references are replaced with environment values before parsing.
func (r *Registry) Load(path, root string, opts ...LoadOption) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var doc interface{}
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}
	return r.LoadDocument(doc, root, opts...)
}

// LoadDocument builds an already-parsed document under root.
// When the result is a registered object it must be root or one of its subtypes.
func (r *Registry) LoadDocument(doc interface{}, root string, opts ...LoadOption) (interface{}, error) {
	o := loadOptions{addDiscriminator: true}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := asMapping(doc)
	if err != nil {
		return nil, err
	}
	if o.section != "" {
		sub, ok := m[o.section]
		if !ok {
			return nil, fmt.Errorf("objcore: section %q not found", o.section)
		}
		if m, err = asMapping(sub); err != nil {
			return nil, fmt.Errorf("objcore: section %q: %w", o.section, err)
		}
	}

	// Shallow copy so the caller's document is left as it was
	top := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		top[k] = v
	}
	key := r.discriminator()
	if _, ok := top[key]; !ok && o.addDiscriminator {
		top[key] = root
	}
	if o.forced != "" {
		top[key] = o.forced
	}

	obj, err := r.Build(top)
	if err != nil {
		return nil, err
	}
	if name, ok := r.NameOf(obj); ok && !r.IsSubtype(name, root) {
		return nil, &ResolutionError{Name: name, Root: root, Reason: "type does not specialize the requested root"}
	}
	return obj, nil
}

// LoadAs loads a document and asserts the result to T
func LoadAs[T any](r *Registry, path, root string, opts ...LoadOption) (T, error) {
	var zero T
	obj, err := r.Load(path, root, opts...)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("objcore: %s built %T, want %T", path, obj, zero)
	}
	return t, nil
}

func asMapping(doc interface{}) (map[string]interface{}, error) {
	switch m := doc.(type) {
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("objcore: document is %T, want a mapping", doc)
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
