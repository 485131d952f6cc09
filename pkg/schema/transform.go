package schema

import (
	"sort"
	"strconv"
	"time"
)

// absentValue marks a missing object property during traversal. It
// never escapes the package: object shapes drop properties that
// resolve to it, so absence stays structural on both sides.
var absentValue any = &struct{ name string }{"absent"}

// direction selects which side of the wire/internal mapping the
// transformer reads from.
type direction int

const (
	decode direction = iota // wire form in, internal form out
	encode                  // internal form in, wire form out
)

// dateLayouts are the timestamp formats accepted on the wire, tried in
// order. The app emits RFC 3339; the two fallbacks cover documents
// produced by older clients that dropped the zone or the time.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Decode validates a decoded JSON value against d and returns the
// normalized internal form: object keys renamed to their internal
// names, date strings parsed into time.Time. The input is not
// modified. On failure the returned error is a *Error carrying the
// wire path of the first offending value.
func (r *Registry) Decode(v any, d *Descriptor) (any, error) {
	return r.transform(v, d, decode, nil)
}

// Encode is the inverse of Decode: it validates an internal value and
// renders its wire form, renaming keys back and formatting time.Time
// values as RFC 3339 strings.
func (r *Registry) Encode(v any, d *Descriptor) (any, error) {
	return r.transform(v, d, encode, nil)
}

func (r *Registry) transform(
	v any, d *Descriptor, dir direction, at path,
) (any, error) {
	d = r.resolve(d)

	switch d.kind {
	case KindPrimitive:
		return transformPrimitive(v, d.prim, at)
	case KindEnum:
		return transformEnum(v, d.enum, at)
	case KindArray:
		return r.transformArray(v, d.elem, dir, at)
	case KindObject:
		return r.transformObject(v, d, dir, at)
	case KindUnion:
		return r.transformUnion(v, d.members, dir, at)
	case KindDate:
		if dir == decode {
			return transformDateDecode(v, at)
		}

		return transformDateEncode(v, at)
	case KindAny:
		return v, nil
	case KindNull:
		if v == nil {
			return nil, nil
		}

		return nil, at.errorf(TypeMismatch, "null", describe(v))
	case KindAbsent:
		if v == absentValue {
			return absentValue, nil
		}

		return nil, at.errorf(TypeMismatch, "absent", describe(v))
	default:
		// KindRef is resolved above; the set is closed.
		return nil, at.errorf(TypeMismatch, d.String(), describe(v))
	}
}

func transformPrimitive(
	v any, kind PrimitiveKind, at path,
) (any, error) {
	switch kind {
	case PrimitiveString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case PrimitiveNumber:
		if n, ok := v.(float64); ok {
			return n, nil
		}
	case PrimitiveBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}

	return nil, at.errorf(TypeMismatch, string(kind), describe(v))
}

func transformEnum(v any, allowed []string, at path) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, at.errorf(
			InvalidEnumValue, "one of "+joinQuoted(allowed), describe(v),
		)
	}

	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}

	return nil, at.errorf(
		InvalidEnumValue, "one of "+joinQuoted(allowed), strconv.Quote(s),
	)
}

func (r *Registry) transformArray(
	v any, elem *Descriptor, dir direction, at path,
) (any, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, at.errorf(TypeMismatch, "array", describe(v))
	}

	out := make([]any, len(arr))

	for i, el := range arr {
		res, err := r.transform(el, elem, dir, at.push(strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}

		out[i] = res
	}

	return out, nil
}

func (r *Registry) transformObject(
	v any, d *Descriptor, dir direction, at path,
) (any, error) {
	in, ok := v.(map[string]any)
	if !ok {
		return nil, at.errorf(TypeMismatch, "object", describe(v))
	}

	// Key projection depends on direction: decoding reads wire keys
	// and writes internal keys, encoding the reverse.
	srcKey := func(p Property) string { return p.Wire }
	dstKey := func(p Property) string { return p.Internal }

	if dir == encode {
		srcKey = func(p Property) string { return p.Internal }
		dstKey = func(p Property) string { return p.Wire }
	}

	declared := d.byWire
	if dir == encode {
		declared = d.byInternal
	}

	out := make(map[string]any, len(in))

	for _, p := range d.props {
		val, present := in[srcKey(p)]
		if !present {
			val = absentValue
		}

		res, err := r.transform(val, p.Type, dir, at.push(srcKey(p)))
		if err != nil {
			return nil, err
		}

		if res == absentValue {
			continue
		}

		out[dstKey(p)] = res
	}

	// Undeclared keys, in sorted order so failures are deterministic.
	extras := make([]string, 0)

	for k := range in {
		if _, known := declared[k]; !known {
			extras = append(extras, k)
		}
	}

	sort.Strings(extras)

	for _, k := range extras {
		switch d.open {
		case OpenDrop:
		case OpenReject:
			return nil, at.push(k).errorf(
				UnknownProperty, "declared property", strconv.Quote(k),
			)
		case OpenTransform:
			res, err := r.transform(in[k], d.extra, dir, at.push(k))
			if err != nil {
				return nil, err
			}

			if res != absentValue {
				out[k] = res
			}
		}
	}

	return out, nil
}

func (r *Registry) transformUnion(
	v any, members []*Descriptor, dir direction, at path,
) (any, error) {
	// First member that validates wins; declaration order is a
	// designed tie-break, so narrower shapes must come first.
	for _, m := range members {
		res, err := r.transform(v, m, dir, at)
		if err == nil {
			return res, nil
		}
	}

	tried := make([]string, len(members))
	for i, m := range members {
		tried[i] = m.String()
	}

	return nil, at.errorf(
		NoUnionMemberMatched, "one of "+joinQuoted(tried), describe(v),
	)
}

// transformDateDecode accepts null as-is and parses timestamp strings.
// Numbers are explicitly rejected: an epoch-like number has different
// semantics than the string forms the schema expects.
func transformDateDecode(v any, at path) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, nil
			}
		}

		return nil, at.errorf(InvalidDate, "timestamp", strconv.Quote(val))
	default:
		return nil, at.errorf(InvalidDate, "timestamp", describe(v))
	}
}

func transformDateEncode(v any, at path) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case string:
		// Internal trees that round-tripped through JSON carry dates
		// as already-formatted strings; validate and pass through.
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, val); err == nil {
				return val, nil
			}
		}

		return nil, at.errorf(InvalidDate, "timestamp", strconv.Quote(val))
	default:
		return nil, at.errorf(InvalidDate, "timestamp", describe(v))
	}
}

func joinQuoted(vals []string) string {
	out := ""

	for i, v := range vals {
		if i > 0 {
			out += ", "
		}

		out += strconv.Quote(v)
	}

	return "[" + out + "]"
}
