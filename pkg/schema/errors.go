package schema

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	// TypeMismatch means the value's dynamic type did not match the
	// declared shape.
	TypeMismatch ErrorKind = "type_mismatch"
	// InvalidEnumValue means a string was not one of the allowed
	// enum members.
	InvalidEnumValue ErrorKind = "invalid_enum_value"
	// InvalidDate means a date field held a value that does not parse
	// into a calendar timestamp.
	InvalidDate ErrorKind = "invalid_date"
	// NoUnionMemberMatched means no union member accepted the value.
	NoUnionMemberMatched ErrorKind = "no_union_member_matched"
	// UnknownProperty means an object input carried a key the shape
	// does not declare and the shape rejects unknown keys.
	UnknownProperty ErrorKind = "unknown_property"
)

// Error is a structural validation failure. Path addresses the failing
// value in wire terms ("meta.uuid", "results.0.id"); Expected and
// Actual describe the mismatch.
type Error struct {
	Kind     ErrorKind
	Path     string
	Expected string
	Actual   string
}

func (e *Error) Error() string {
	path := e.Path
	if path == "" {
		path = "$"
	}

	return fmt.Sprintf(
		"%s at %s: expected %s, got %s", e.Kind, path, e.Expected, e.Actual,
	)
}

// path tracks the wire-key trail during traversal. Segments are joined
// with dots, array indices appearing as bare numbers.
type path []string

func (p path) push(seg string) path {
	next := make(path, len(p), len(p)+1)
	copy(next, p)

	return append(next, seg)
}

func (p path) String() string {
	return strings.Join(p, ".")
}

func (p path) errorf(
	kind ErrorKind, expected, actual string,
) *Error {
	return &Error{
		Kind:     kind,
		Path:     p.String(),
		Expected: expected,
		Actual:   actual,
	}
}

// describe names the dynamic type of a decoded JSON value for error
// messages.
func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		if v == absentValue {
			return "absent"
		}

		return fmt.Sprintf("%T", v)
	}
}
