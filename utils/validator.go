package utils

import (
	"errors"
	"reflect"
	"strings"

	"adveri/apperr"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"
)

var validate = func() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// ValidateStruct runs the struct's validate tags and folds every field error
// into one validation error.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("%s", err.Error())
	}

	var msgs []string
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		param := fe.Param()

		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must be at least "+param+" characters")
		case "max":
			msgs = append(msgs, field+" must be at most "+param+" characters")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "gt":
			msgs = append(msgs, field+" must be greater than "+param)
		case "gte":
			msgs = append(msgs, field+" must be at least "+param)
		case "oneof":
			msgs = append(msgs, field+" must be one of: "+strings.ReplaceAll(param, " ", ", "))
		case "required_if":
			msgs = append(msgs, field+" is required for this role")
		case "datetime":
			msgs = append(msgs, field+" must be a date (YYYY-MM-DD)")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}

	return apperr.Validation("%s", strings.Join(msgs, ", "))
}

// ValidateEmail checks the address syntax.
func ValidateEmail(email string) error {
	if err := checkmail.ValidateFormat(email); err != nil {
		return apperr.Validation("email must be a valid email")
	}
	return nil
}
