// Package validator provides declarative, rule-based input validation with
// field-level error reporting.
//
// Rules are plain values combining a check closure with the error to record
// when the check fails. Apply runs a set of rules and returns nil or a
// ValidationErrors collection, which serializes into a field -> messages map
// for HTTP responses.
//
//	if err := validator.Apply(
//		validator.ValidEmail("email", email),
//		validator.Required("password", password),
//	); err != nil {
//		// err is ValidationErrors
//	}
package validator
