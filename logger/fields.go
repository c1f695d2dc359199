package logger

// Field keys shared across the module so log lines stay greppable.
const (
	FieldComponent   = "component"
	FieldExecutionID = "execution_id"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldDuration    = "duration_ms"
	FieldProvider    = "provider"
	FieldKey         = "key"
	FieldPrefix      = "prefix"
	FieldBytes       = "bytes"
)

// Fields turns alternating key-value pairs into a field map. Non-string
// keys are skipped, as is a trailing key without a value.
//
//	logger.Info("object archived", logger.Fields(logger.FieldKey, key, logger.FieldBytes, n))
func Fields(kvs ...interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		fields[key] = kvs[i+1]
	}
	return fields
}

// MergeWithError records err under FieldError on the given map, which
// may be nil.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	if fields == nil {
		return map[string]interface{}{FieldError: err.Error()}
	}
	fields[FieldError] = err.Error()
	return fields
}
