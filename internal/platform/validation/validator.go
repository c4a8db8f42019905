package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/nyaruka/phonenumbers"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
)

// CustomValidator adapts validator/v10 to echo.Validator.
type CustomValidator struct {
	validator     *validator.Validate
	defaultRegion string
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New builds the validator. defaultRegion (ISO 3166 alpha-2) is used to parse
// phone numbers written without an international prefix.
func New(defaultRegion string) *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})

	cv := &CustomValidator{validator: v, defaultRegion: strings.ToUpper(defaultRegion)}
	if err := v.RegisterValidation("phone", cv.isPhoneNumber); err != nil {
		panic("register phone validation: " + err.Error())
	}
	return cv
}

func (cv *CustomValidator) isPhoneNumber(fl validator.FieldLevel) bool {
	return IsPhoneNumber(fl.Field().String(), cv.defaultRegion)
}

// IsPhoneNumber reports whether s parses as a valid number, falling back to
// region for national formats.
func IsPhoneNumber(s, region string) bool {
	num, err := phonenumbers.Parse(strings.TrimSpace(s), region)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

// NormalizePhone formats a valid number as E.164; invalid input is returned
// unchanged.
func NormalizePhone(s, region string) string {
	num, err := phonenumbers.Parse(strings.TrimSpace(s), region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return s
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// FieldErrors maps field names to a readable message.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid e-mail address"
	case "phone":
		return "must be a valid phone number"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt", "gtfield":
		return "must be greater than " + fe.Param()
	case "gtefield":
		return "must not be before " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// BindAndValidate binds the request into dst and validates it, returning an
// apperr validation error describing every failing field.
func BindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(dst); err != nil {
		fields := FieldErrors(err)
		if len(fields) == 0 {
			return apperr.Validation("%s", err.Error())
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s %s", name, fields[name]))
		}
		return apperr.Validation("%s", strings.Join(parts, "; "))
	}
	return nil
}
