package service

import (
	"QRLinks-Backend/internal/domain"
	"errors"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lucasb-eyer/go-colorful"
)

// NewValidator создает валидатор с тегом "qrcolor" (#RGB или #RRGGBB)
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("qrcolor", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 4 && len(s) != 7 {
			return false
		}
		_, err := colorful.Hex(s)
		return err == nil
	})
	return v
}

func validateDestination(v *validator.Validate, dest string) error {
	if strings.TrimSpace(dest) == "" {
		return invalid("destinationUrl", "is required")
	}
	if err := v.Var(dest, "http_url"); err != nil {
		return invalid("destinationUrl", "must be an absolute http(s) URL")
	}
	if u, err := url.Parse(dest); err != nil || u.Host == "" {
		return invalid("destinationUrl", "must be an absolute http(s) URL")
	}
	return nil
}

func validateCustomizations(v *validator.Validate, c domain.Customizations) error {
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "is invalid"
		switch fe.Tag() {
		case "qrcolor":
			reason = "must be a #RGB or #RRGGBB color"
		case "http_url":
			reason = "must be an http(s) URL"
		}
		return invalid("customizations."+fe.Field(), reason)
	}
	return invalid("customizations", err.Error())
}
