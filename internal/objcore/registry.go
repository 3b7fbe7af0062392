package objcore

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

const (
	// RootName is the implicit root every registered type descends from
	RootName = "Object"

	// DefaultDiscriminatorKey is the document key naming the concrete type
	DefaultDiscriminatorKey = "cls"
)

type entry struct {
	name   string
	parent string
	typ    reflect.Type // struct type, nil for abstract entries
}

// Registry maps discriminator names to concrete Go types.
type Registry struct {
	// DiscriminatorKey is the document key naming the concrete type.
	DiscriminatorKey string

	mu      sync.RWMutex
	entries map[string]*entry
	byType  map[reflect.Type]string
}

// Default is the process-wide registry
var Default = NewRegistry()

// NewRegistry creates an empty registry containing only the root
func NewRegistry() *Registry {
	return &Registry{
		DiscriminatorKey: DefaultDiscriminatorKey,
		entries: map[string]*entry{
			RootName: {name: RootName},
		},
		byType: make(map[reflect.Type]string),
	}
}

// Register adds a concrete type under name, as a child of parent.
// proto is a value or pointer of the struct type; an empty parent means RootName.
func (r *Registry) Register(name, parent string, proto interface{}) error {
	typ := reflect.TypeOf(proto)
	if typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return fmt.Errorf("objcore: %s: prototype must be a struct, got %T", name, proto)
	}
	return r.add(name, parent, typ)
}

// RegisterAbstract adds a name that can be used as a root but never built.
func (r *Registry) RegisterAbstract(name, parent string) error {
	return r.add(name, parent, nil)
}

// MustRegister is Register that panics on error, for use from init.
func (r *Registry) MustRegister(name, parent string, proto interface{}) {
	if err := r.Register(name, parent, proto); err != nil {
		panic(err)
	}
}

func (r *Registry) add(name, parent string, typ reflect.Type) error {
	if name == "" {
		return fmt.Errorf("objcore: empty type name")
	}
	if parent == "" {
		parent = RootName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("objcore: type %s already registered", name)
	}
	if _, exists := r.entries[parent]; !exists {
		return fmt.Errorf("objcore: parent %s of %s is not registered", parent, name)
	}
	if typ != nil {
		if other, exists := r.byType[typ]; exists {
			return fmt.Errorf("objcore: %s already registered as %s", typ, other)
		}
		r.byType[typ] = name
	}

	r.entries[name] = &entry{name: name, parent: parent, typ: typ}
	return nil
}

// Subtypes returns the names that specialize root, sorted. With recursive
// false only direct children are returned. Unknown roots have no subtypes.
func (r *Registry) Subtypes(root string, recursive bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for name, e := range r.entries {
		if name == RootName {
			continue
		}
		if recursive {
			if name != root && r.descendsLocked(name, root) {
				out = append(out, name)
			}
		} else if e.parent == root {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// IsSubtype reports whether name is root or transitively specializes it
func (r *Registry) IsSubtype(name, root string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	return r.descendsLocked(name, root)
}

func (r *Registry) descendsLocked(name, root string) bool {
	for name != "" {
		if name == root {
			return true
		}
		e, ok := r.entries[name]
		if !ok || name == RootName {
			return false
		}
		name = e.parent
	}
	return false
}

// NameOf returns the registered name of obj's concrete type
func (r *Registry) NameOf(obj interface{}) (string, bool) {
	typ := reflect.TypeOf(obj)
	if typ == nil {
		return "", false
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[typ]
	return name, ok
}

// Names returns every registered name except the root, sorted
func (r *Registry) Names() []string {
	return r.Subtypes(RootName, true)
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

func (r *Registry) discriminator() string {
	if r.DiscriminatorKey == "" {
		return DefaultDiscriminatorKey
	}
	return r.DiscriminatorKey
}

// Register adds a concrete type to the Default registry
func Register(name, parent string, proto interface{}) error {
	return Default.Register(name, parent, proto)
}

// RegisterAbstract adds an abstract name to the Default registry
func RegisterAbstract(name, parent string) error {
	return Default.RegisterAbstract(name, parent)
}
