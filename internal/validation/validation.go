/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package validation wraps go-playground/validator with the custom tags
// used across request bodies and settings.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/friendsincode/cadence/internal/workhours"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("validation failed")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := workhours.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, err := workhours.ParseWeekday(fl.Field().String())
		return err == nil
	})
	return v
}

// Struct validates s and formats every field error into one message.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := toSnake(fe.Field())
		param := fe.Param()

		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must be at least "+param)
		case "max":
			msgs = append(msgs, field+" must be at most "+param)
		case "gt":
			msgs = append(msgs, field+" must be greater than "+param)
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "clock":
			msgs = append(msgs, field+" must be HH:MM")
		case "weekday":
			msgs = append(msgs, field+" must be a weekday name")
		case "timezone":
			msgs = append(msgs, field+" must be an IANA timezone")
		case "oneof":
			msgs = append(msgs, field+" must be one of "+param)
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, ", "))
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
