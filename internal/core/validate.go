package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator with the domain tags
// registered ("monthkey", "txtype", "activity").
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("monthkey", func(fl validator.FieldLevel) bool {
			return MonthKey(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("txtype", func(fl validator.FieldLevel) bool {
			return TransactionType(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("activity", func(fl validator.FieldLevel) bool {
			return ActivityStatus(fl.Field().String()).Valid()
		})
	})
	return validate
}

// ValidateStruct runs the tag validation and flattens field errors into one
// readable error.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid input: %s", strings.Join(msgs, "; "))
}
