package schema

import "fmt"

// Registry resolves Ref descriptors by name. Registration order is
// irrelevant because resolution is deferred until validation time.
// A Ref to a name that was never registered is a programmer error and
// panics; it is not a runtime validation failure.
type Registry struct {
	shapes map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{shapes: make(map[string]*Descriptor)}
}

// Register binds name to a shape, replacing any previous binding.
func (r *Registry) Register(name string, d *Descriptor) {
	r.shapes[name] = d
}

// Lookup returns the shape registered under name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.shapes[name]

	return d, ok
}

// resolve follows Ref chains until a concrete descriptor is reached.
// The registries used in practice are acyclic in effective depth; a
// direct self-reference would loop, which is as much a programmer
// error as an unresolvable name.
func (r *Registry) resolve(d *Descriptor) *Descriptor {
	for d.kind == KindRef {
		next, ok := r.shapes[d.ref]
		if !ok {
			panic(fmt.Sprintf(
				"schema: unresolvable reference %q", d.ref,
			))
		}

		d = next
	}

	return d
}
