package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rohankatakam/repostats/internal/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// report yaml key names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})
	})
	return validate
}

// ValidationResult holds validation results
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// Err returns the errors as a single validation error, or nil.
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ValidationErrorf("invalid configuration: %s", strings.Join(vr.Errors, "; "))
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	if err := getValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !stderrors.As(err, &fieldErrs) {
			result.AddError("%v", err)
			return result
		}
		for _, fe := range fieldErrs {
			result.AddError("%s: %s", yamlPath(fe.Namespace()), describe(fe))
		}
	}

	if c.GitHub.Token == "" {
		result.AddWarning("no GitHub token: unauthenticated requests are limited to 60 per hour")
	}
	if c.History.Mailmap != "" {
		if _, err := os.Stat(c.History.Mailmap); err != nil {
			result.AddWarning("history.mailmap %s is not readable, identities will not be merged", c.History.Mailmap)
		}
	}

	return result
}

// yamlPath turns "Config.github.per_page" into "github.per_page".
func yamlPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "url":
		return "must be a URL"
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
