// internal/service/validation.go
package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("mergefield", func(fl validator.FieldLevel) bool {
		return isMergeField(fl.Field().String())
	})
	return v
}

// validateStruct flattens validator errors into a ValidationError keyed by
// json field name.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &appErrors.ValidationError{Fields: map[string]string{}}
	for _, e := range verrs {
		field := e.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}

		switch e.Tag() {
		case "required":
			out.Fields[field] = "is required"
		case "max":
			out.Fields[field] = "must be at most " + e.Param() + " characters"
		case "oneof":
			out.Fields[field] = "must be one of: " + strings.ReplaceAll(e.Param(), " ", ", ")
		case "mergefield":
			out.Fields[field] = "contains an unknown merge field: " + e.Value().(string)
		case "gt":
			out.Fields[field] = "must be greater than " + e.Param()
		default:
			out.Fields[field] = "is invalid"
		}
	}
	return out
}
