package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "tradelens/internal/errors"
	"tradelens/pkg/contracts/domain"
)

// AnalyzeParams are the query parameters of an analysis request.
type AnalyzeParams struct {
	Groups []string `json:"group" validate:"max=7,dive,groupkey"`
}

// ExportParams are the query parameters of an export request.
type ExportParams struct {
	Filename string `json:"filename" validate:"max=200"`
}

// RequestValidator validates request parameter structs. Error messages use
// the json tag names.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates a validator with the ledger rules registered
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	_ = v.RegisterValidation("groupkey", isGroupKey)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

// ValidateStruct validates v and returns an *apierrors.APIError listing
// every failing field.
func (rv *RequestValidator) ValidateStruct(v interface{}) error {
	err := rv.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	details := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(details)
}

// isGroupKey accepts the names of domain.GroupKeys
func isGroupKey(fl validator.FieldLevel) bool {
	_, err := domain.ParseGroupBy(fl.Field().String())
	return err == nil
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "groupkey":
		names := make([]string, len(domain.GroupKeys))
		for i, g := range domain.GroupKeys {
			names[i] = string(g)
		}
		return fmt.Sprintf("%s must be one of: %s (got %q)", field, strings.Join(names, ", "), err.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}
