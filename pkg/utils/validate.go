package utils

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// ValidateStruct runs the struct tags of v and wraps failures in domain.ErrValidation.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", domain.ErrValidation, joinFields(FormatValidationError(verrs)))
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	return nil
}

func FormatValidationError(err error) map[string]string {
	errs := make(map[string]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["_"] = err.Error()
		return errs
	}

	for _, err := range verrs {
		field := fieldPath(err.Namespace())
		if field == "" {
			field = strings.ToLower(err.Field())
		}

		switch err.Tag() {
		case "required":
			errs[field] = fmt.Sprintf("%s is required", field)
		case "min":
			errs[field] = fmt.Sprintf("%s must have at least %s entries", field, err.Param())
		case "gt":
			errs[field] = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "gte":
			errs[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "oneof":
			errs[field] = fmt.Sprintf("%s must be one of [%s]", field, err.Param())
		default:
			errs[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return errs
}

// fieldPath drops the root type and embedded struct names, which keep their Go
// names, from a validator namespace: "UserCheckoutAccepted.Address.street_1"
// becomes "street_1".
func fieldPath(namespace string) string {
	segments := strings.Split(namespace, ".")
	if len(segments) < 2 {
		return ""
	}

	path := make([]string, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		if seg != "" && unicode.IsUpper(rune(seg[0])) {
			continue
		}
		path = append(path, seg)
	}

	return strings.Join(path, ".")
}

func joinFields(errs map[string]string) string {
	parts := make([]string, 0, len(errs))
	for _, msg := range errs {
		parts = append(parts, msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
