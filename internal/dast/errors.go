package dast

import (
	"fmt"
	"strings"
)

// StructuralError reports a child of a kind the container does not permit.
type StructuralError struct {
	Parent  Kind
	Child   Kind
	Allowed []Kind
}

func (e *StructuralError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, k := range e.Allowed {
		allowed[i] = string(k)
	}
	return fmt.Sprintf("dast: %s cannot contain %s (allowed: %s)", e.Parent, e.Child, strings.Join(allowed, ", "))
}

// EmptyChildrenError reports a container that requires at least one child.
type EmptyChildrenError struct {
	Parent Kind
}

func (e *EmptyChildrenError) Error() string {
	return fmt.Sprintf("dast: %s requires at least one child", e.Parent)
}

// RangeError reports an attribute outside its permitted range.
type RangeError struct {
	Parent    Kind
	Attribute string
	Value     int
	Min       int
	Max       int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("dast: %s %s must be between %d and %d, got %d", e.Parent, e.Attribute, e.Min, e.Max, e.Value)
}

// AmbiguousFieldError reports a field key that collides with the reserved
// item type discriminator in the flattened block wire form.
type AmbiguousFieldError struct {
	Key string
}

func (e *AmbiguousFieldError) Error() string {
	return fmt.Sprintf("dast: field key %q collides with the reserved item type discriminator", e.Key)
}

// DecodeError reports wire input that cannot be mapped to any node shape.
// It is the only error in this package that can originate from untrusted
// remote data, so callers must treat it as recoverable.
type DecodeError struct {
	Path   string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "dast: decode: " + e.Reason
	}
	return fmt.Sprintf("dast: decode %s: %s", e.Path, e.Reason)
}
