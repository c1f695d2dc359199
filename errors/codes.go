package errors

// ErrorCode is a stable machine-readable failure classification. Codes
// survive wrapping, so callers branch on them instead of matching
// message text.
type ErrorCode string

const (
	// ErrCodeTimeout marks an operation that ran out of time.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeNotFound marks a missing resource.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidInput marks rejected input.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField marks a required field left empty.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeInvalidFormat marks a field that failed format checks.
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	// ErrCodeInternal marks an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// codeTraits classifies each code once; the Is*Code helpers read from
// it. Codes missing from the table report false for every trait.
var codeTraits = map[ErrorCode]struct{ retryable, validation bool }{
	ErrCodeTimeout:       {retryable: true},
	ErrCodeNotFound:      {},
	ErrCodeInvalidInput:  {validation: true},
	ErrCodeMissingField:  {validation: true},
	ErrCodeInvalidFormat: {validation: true},
	ErrCodeInternal:      {},
}

// IsRetryableCode reports whether another attempt can succeed for code.
func IsRetryableCode(code ErrorCode) bool {
	return codeTraits[code].retryable
}

// IsValidationCode reports whether code marks rejected input.
func IsValidationCode(code ErrorCode) bool {
	return codeTraits[code].validation
}
