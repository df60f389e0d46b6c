package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/apprelay/apprelay/internal/model"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return model.Platform(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return model.Channel(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("buildstatus", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || model.BuildStatus(s).Valid()
	})
	return v
}

// validationError converts the first validator failure into a ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return invalid(field, "is required")
	case "platform":
		return invalid(field, "must be iOS or Android")
	case "channel":
		return invalid(field, "must be Beta, Staging or Production")
	case "buildstatus":
		return invalid(field, "must be Success, Failed or In Progress")
	case "gte":
		return invalid(field, fmt.Sprintf("must be at least %s", fe.Param()))
	default:
		return invalid(field, fmt.Sprintf("failed %q check", fe.Tag()))
	}
}
