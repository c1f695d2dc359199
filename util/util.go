package util

// Ptr returns a pointer to the given value. Optional policy-rule and
// config fields are pointer-typed so their literals are built with Ptr.
func Ptr[T any](v T) *T {
	return &v
}

// Deref is the inverse of Ptr: it returns the pointed-to value, or the
// zero value for a nil pointer.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Coalesce returns the first of its arguments that is not the zero
// value, or the zero value when all are.
func Coalesce[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}
