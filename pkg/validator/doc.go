// Package validator builds request validation out of small Rule values.
//
// Each rule pairs a Check func with the ValidationError reported when the
// check fails. Apply evaluates rules in order and collects every failure into
// a ValidationErrors value, which satisfies error and can be recovered from a
// wrapped chain with ExtractValidationErrors.
//
//	err := validator.Apply(
//	    validator.Required("plan", req.Plan),
//	    validator.InListCaseInsensitive("plan", req.Plan, plans),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    // render field messages
//	}
package validator
