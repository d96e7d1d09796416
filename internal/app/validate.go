package app

import (
	"errors"
	"fmt"
	"strings"

	"avtotest-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateStruct turns validator failures into a single domain.ErrValidation.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return err
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(messages, "; "))
}
