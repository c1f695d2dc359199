// Package validation checks configuration and user input, reporting every
// failing field at once rather than stopping at the first.
//
// Tag-driven validation suits declarative documents like lifecycle
// policies:
//
//	type Rule struct {
//	    ID     string `json:"id" validate:"required"`
//	    Action string `json:"action" validate:"required,oneof=keep archive delete"`
//	}
//	err := validation.Validate(rule)
//
// The chainable Validator suits ad-hoc argument and flag checking:
//
//	v := validation.New()
//	v.Required("bucket", cfg.Bucket).Range("quality", q, 0, 100)
//	err := v.Validate()
package validation
