package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/bhandras/bazaar/pkg/logger"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
			_, err := logger.ParseLevel(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Validate checks struct tags on a client or server configuration.
func Validate(cfg any) error {
	err := validatorInstance().Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be an absolute URL, got %q", field, fe.Value())
	case "loglevel":
		return fmt.Sprintf("%s %q is not a log level", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}
