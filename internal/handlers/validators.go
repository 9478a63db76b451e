package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Gopher0727/ProfDash/internal/analytics"
)

// custom validation tags
const (
	noiseModelTag = "noisemodel"
	notBlankTag   = "notblank"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding rules on gin's validator.
// Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		// report json/form names instead of Go field names
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})

		_ = v.RegisterValidation(noiseModelTag, func(fl validator.FieldLevel) bool {
			_, err := analytics.ParseNoiseModel(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
}

// bindingMessage turns validator errors into a short, client-facing message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case notBlankTag:
			msgs = append(msgs, fmt.Sprintf("%s cannot be blank", fe.Field()))
		case noiseModelTag:
			msgs = append(msgs, fmt.Sprintf("%s must be one of simple, improved, realistic", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}
