// Package schema implements a small, interpreted type system for
// benchmark result documents. A Descriptor describes the expected
// shape of a decoded JSON value; the transformer in transform.go walks
// a value against a Descriptor and either normalizes it or reports a
// structured error with the offending path.
package schema

import "fmt"

// Kind discriminates the Descriptor variants. The set is closed; the
// transformer switches exhaustively over it.
type Kind int

const (
	// KindPrimitive matches a single JSON primitive type.
	KindPrimitive Kind = iota
	// KindEnum matches one of a fixed set of string values.
	KindEnum
	// KindArray matches an ordered sequence of a single element shape.
	KindArray
	// KindObject matches a mapping with declared properties.
	KindObject
	// KindUnion matches the first member shape that accepts the value.
	KindUnion
	// KindDate matches null or a parseable timestamp string.
	KindDate
	// KindRef matches whatever the named registry entry matches.
	KindRef
	// KindAny matches any value unchanged.
	KindAny
	// KindNull matches only JSON null.
	KindNull
	// KindAbsent matches only a missing object property. Combined with
	// a union it expresses optional properties.
	KindAbsent
)

// PrimitiveKind selects the dynamic type a KindPrimitive descriptor
// accepts. JSON numbers arrive as float64 from encoding/json.
type PrimitiveKind string

const (
	PrimitiveString PrimitiveKind = "string"
	PrimitiveNumber PrimitiveKind = "number"
	PrimitiveBool   PrimitiveKind = "bool"
)

// OpenMode controls how an object shape treats input keys that are not
// declared as properties.
type OpenMode int

const (
	// OpenDrop silently discards unknown keys.
	OpenDrop OpenMode = iota
	// OpenReject fails validation on the first unknown key.
	OpenReject
	// OpenTransform validates unknown keys against a wildcard
	// descriptor and keeps them under their original key.
	OpenTransform
)

// Property declares one object property: the key it has on the wire,
// the key it has on the normalized record, and its shape. Wire and
// internal keys usually coincide but are allowed to differ.
type Property struct {
	Wire     string
	Internal string
	Type     *Descriptor
}

// Descriptor is a node in the type descriptor graph. Construct values
// with the package constructors; the zero value is not meaningful.
type Descriptor struct {
	kind    Kind
	prim    PrimitiveKind
	enum    []string
	elem    *Descriptor
	props   []Property
	open    OpenMode
	extra   *Descriptor
	members []*Descriptor
	ref     string

	// Projection tables, precomputed at construction so lookups during
	// validation never mutate the descriptor.
	byWire     map[string]int
	byInternal map[string]int
}

// Kind returns the variant of this descriptor.
func (d *Descriptor) Kind() Kind { return d.kind }

// String returns a short human-readable name for the descriptor,
// used in union mismatch errors.
func (d *Descriptor) String() string {
	switch d.kind {
	case KindPrimitive:
		return string(d.prim)
	case KindEnum:
		return fmt.Sprintf("enum%v", d.enum)
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindUnion:
		return "union"
	case KindDate:
		return "date"
	case KindRef:
		return d.ref
	case KindAny:
		return "any"
	case KindNull:
		return "null"
	case KindAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// String matches a JSON string.
func String() *Descriptor {
	return &Descriptor{kind: KindPrimitive, prim: PrimitiveString}
}

// Number matches a JSON number.
func Number() *Descriptor {
	return &Descriptor{kind: KindPrimitive, prim: PrimitiveNumber}
}

// Bool matches a JSON boolean.
func Bool() *Descriptor {
	return &Descriptor{kind: KindPrimitive, prim: PrimitiveBool}
}

// Enum matches a string equal to one of the given values.
func Enum(values ...string) *Descriptor {
	return &Descriptor{kind: KindEnum, enum: values}
}

// ArrayOf matches an ordered sequence whose elements all match elem.
func ArrayOf(elem *Descriptor) *Descriptor {
	return &Descriptor{kind: KindArray, elem: elem}
}

// Date matches null or a string holding a parseable timestamp.
// Numbers are rejected so epoch-like values are never silently
// reinterpreted.
func Date() *Descriptor {
	return &Descriptor{kind: KindDate}
}

// Any matches any value and passes it through unchanged.
func Any() *Descriptor {
	return &Descriptor{kind: KindAny}
}

// Null matches only JSON null.
func Null() *Descriptor {
	return &Descriptor{kind: KindNull}
}

// Absent matches only a missing object property.
func Absent() *Descriptor {
	return &Descriptor{kind: KindAbsent}
}

// Optional wraps a shape so the property may be missing entirely.
// Member order matters: absence is checked first, then the shape.
func Optional(d *Descriptor) *Descriptor {
	return UnionOf(Absent(), d)
}

// UnionOf matches the first member that accepts the value. Declaration
// order is load-bearing: narrower members must precede looser ones.
func UnionOf(members ...*Descriptor) *Descriptor {
	return &Descriptor{kind: KindUnion, members: members}
}

// Ref matches the shape registered under name. Resolution happens at
// validation time, so shapes may reference each other in any
// declaration order.
func Ref(name string) *Descriptor {
	return &Descriptor{kind: KindRef, ref: name}
}

// Object matches a mapping with the declared properties, treating
// undeclared keys according to mode. The wire and internal key
// projection tables are built once here and never change.
func Object(props []Property, mode OpenMode) *Descriptor {
	return newObject(props, mode, nil)
}

// OpenObject is an Object whose unknown keys are validated against the
// wildcard descriptor and kept verbatim under their original key.
func OpenObject(props []Property, wildcard *Descriptor) *Descriptor {
	return newObject(props, OpenTransform, wildcard)
}

func newObject(
	props []Property, mode OpenMode, wildcard *Descriptor,
) *Descriptor {
	d := &Descriptor{
		kind:       KindObject,
		props:      props,
		open:       mode,
		extra:      wildcard,
		byWire:     make(map[string]int, len(props)),
		byInternal: make(map[string]int, len(props)),
	}

	for i, p := range props {
		if _, dup := d.byWire[p.Wire]; dup {
			panic(fmt.Sprintf("schema: duplicate wire key %q", p.Wire))
		}

		if _, dup := d.byInternal[p.Internal]; dup {
			panic(fmt.Sprintf(
				"schema: duplicate internal key %q", p.Internal,
			))
		}

		d.byWire[p.Wire] = i
		d.byInternal[p.Internal] = i
	}

	if mode == OpenTransform && wildcard == nil {
		d.extra = Any()
	}

	return d
}

// P builds a property whose wire and internal keys coincide.
func P(key string, t *Descriptor) Property {
	return Property{Wire: key, Internal: key, Type: t}
}

// PR builds a property that is renamed between wire and internal form.
func PR(wire, internal string, t *Descriptor) Property {
	return Property{Wire: wire, Internal: internal, Type: t}
}
