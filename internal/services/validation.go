package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"growvia-service/pkg/common"
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateDTO runs struct tags and reports the first failing field.
func validateDTO(dto interface{}) error {
	err := validate.Struct(dto)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		msg := fmt.Sprintf("%s is invalid", field)
		if fe.Tag() == "required" {
			msg = fmt.Sprintf("%s is required", field)
		}
		return &common.ValidationError{Field: field, Message: msg}
	}
	return &common.ValidationError{Message: err.Error()}
}

func requirePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &common.ValidationError{Field: field, Message: fmt.Sprintf("%s must be greater than zero", field)}
	}
	return nil
}
