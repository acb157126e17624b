package utils

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var periodIdPattern = regexp.MustCompile(`^\d{6}$`)

// sharedValidator returns the validator with the custom "periodid" tag registered.
func sharedValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report json names so messages match request bodies.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("periodid", func(fl validator.FieldLevel) bool {
			return periodIdPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct runs struct tags and turns failures into a ValidationError.
func ValidateStruct(input any) error {
	if err := sharedValidator().Struct(input); err != nil {
		fields := ProcessValidationErrors(err)
		parts := make([]string, 0, len(fields))
		for f, tag := range fields {
			parts = append(parts, f+" failed "+tag)
		}
		sort.Strings(parts)
		return NewValidationError("invalid input: %s", strings.Join(parts, ", "))
	}
	return nil
}
