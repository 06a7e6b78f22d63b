package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("validation", fx.Provide(New))

// New returns a validator reporting fields by their snake_case name.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := strings.Split(field.Tag.Get("json"), ",")[0]; name != "" && name != "-" {
			return name
		}
		return toSnake(field.Name)
	})
	return v
}

// Struct validates req and converts the first failure into a ValidationError.
func Struct(v *validator.Validate, req any) error {
	if v == nil {
		v = New()
	}
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invoicedomain.NewValidationError(fe.Field(), describe(fe))
	}
	return invoicedomain.NewValidationError("", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "alpha":
		return "must contain letters only"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
