/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package classifier labels prospect replies.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/cadence/internal/validation"
)

// Category is the label assigned to a reply.
type Category string

const (
	Interested      Category = "INTERESTED"
	NotInterested   Category = "NOT_INTERESTED"
	Referral        Category = "REFERRAL"
	WrongEmail      Category = "WRONG_EMAIL"
	OutOfOffice     Category = "OUT_OF_OFFICE"
	GeneralQuestion Category = "GENERAL_QUESTION"
	Bounce          Category = "BOUNCE"
	ReviewAnswer    Category = "REVIEW_ANSWER"
)

// ErrUnknownCategory is returned for labels outside the closed set.
var ErrUnknownCategory = errors.New("unknown reply category")

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case Interested, NotInterested, Referral, WrongEmail, OutOfOffice, GeneralQuestion, Bounce, ReviewAnswer:
		return true
	}
	return false
}

// ParseCategory normalizes a label such as "interested" or "Out of office".
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(s))))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Result is a classification with optional scheduling hints.
type Result struct {
	Category          Category `json:"category" validate:"required"`
	SuggestedDays     []string `json:"suggested_days,omitempty" validate:"omitempty,dive,weekday"`
	SuggestedTime     string   `json:"suggested_time,omitempty" validate:"omitempty,clock"`
	SuggestedTimezone string   `json:"suggested_timezone,omitempty" validate:"omitempty,timezone"`
	ReferredEmail     string   `json:"referred_email,omitempty" validate:"omitempty,email"`
}

// Validate checks the category and hint formats.
func (r Result) Validate() error {
	if !r.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, r.Category)
	}
	return validation.Struct(r)
}

// Classifier labels a reply body.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}
