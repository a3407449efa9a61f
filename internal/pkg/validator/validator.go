// Package validator validates request structs with go-playground/validator
// tags and reports every failing field in one joined error.
//
// Chain packages add their own string rules (address formats) from init
// through RegisterStringRule, so a tag like `validate:"required,evm_address"`
// can be used anywhere once the package defining it is imported.
package validator

import (
	"errors"
	"fmt"

	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is the first error of the chain returned by Validate.
var ErrValidationFailed = errors.New("struct validation failed")

// errStringFormat describes one failing field, e.g.
// "'Address': value '0x' does not meet the requirements for the 'evm_address' validation".
const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

var validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())

// formatError turns validator.ValidationErrors into ErrValidationFailed joined
// with one message per field. Other errors are returned unchanged.
func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := make([]error, 0, len(validationErrors)+1)
	errs = append(errs, ErrValidationFailed)
	for _, fieldErr := range validationErrors {
		errs = append(errs, fmt.Errorf(errStringFormat, fieldErr.Field(), fieldErr.Value(), fieldErr.Tag()))
	}

	return errors.Join(errs...)
}

// Validate checks v against its `validate` tags. The error, if any, matches
// ErrValidationFailed with errors.Is.
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}

	return nil
}

// RegisterStringRule registers tag as a rule for string fields; fields of any
// other kind fail it. Call it from init, before Validate is used concurrently.
//
//	func init() {
//	    if err := validator.RegisterStringRule("evm_address", common.IsHexAddress); err != nil {
//	        panic(err)
//	    }
//	}
func RegisterStringRule(tag string, rule func(string) bool) error {
	return validator.RegisterValidation(tag, func(fl gvalidator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		return ok && rule(value)
	})
}
