package service

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	validator "github.com/go-playground/validator/v10"
)

// NonFieldErrors is the Fields key of errors that span several fields.
const NonFieldErrors = "non_field_errors"

// ValidationError carries user-facing messages keyed by JSON field name.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], " ")))
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("username", isValidUsername); err != nil {
		panic(err)
	}

	return v
}

// isValidUsername accepts letters, digits and @.+-_ only.
func isValidUsername(fieldLevel validator.FieldLevel) bool {
	for _, r := range fieldLevel.Field().String() {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("@.+-_", r) {
			continue
		}
		return false
	}

	return true
}

// isValidHost accepts a domain name with a dotted TLD, an IP address or localhost.
func isValidHost(host string) bool {
	return validate.Var(host, "fqdn|ip|eq=localhost") == nil
}

// validateRequest checks the validate tags of a request DTO.
func validateRequest(request any) error {
	err := validate.Struct(request)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	result := &ValidationError{Fields: map[string][]string{}}
	for _, fe := range fieldErrors {
		result.Fields[fe.Field()] = append(result.Fields[fe.Field()], messageFor(fe))
	}

	return result
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "url":
		return "Enter a valid URL."
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	default:
		return "Invalid value."
	}
}
