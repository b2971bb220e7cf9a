/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// KeywordClassifier is an offline heuristic used when no remote classifier
// is configured. Ambiguous replies fall through to ReviewAnswer so a human
// looks at them.
type KeywordClassifier struct{}

type rule struct {
	category Category
	phrases  []string
}

// Order matters: bounce and auto-replies are checked before intent.
var rules = []rule{
	{Bounce, []string{"delivery status notification", "undeliverable", "mailbox unavailable", "address not found", "delivery has failed", "mail delivery failed"}},
	{OutOfOffice, []string{"out of office", "out of the office", "on vacation", "on leave", "away until", "limited access to email", "auto-reply", "automatic reply"}},
	{WrongEmail, []string{"wrong person", "wrong email", "no longer with", "no longer work", "not the right person", "left the company"}},
	{Referral, []string{"reach out to", "contact my colleague", "better person", "right person is", "cc'ing", "looping in", "please contact"}},
	{NotInterested, []string{"not interested", "no thanks", "no thank you", "unsubscribe", "remove me", "stop emailing", "not a fit", "not right now", "we're all set", "we are all set"}},
	{Interested, []string{"interested", "sounds good", "let's talk", "lets talk", "happy to chat", "set up a call", "schedule a call", "book a time", "works for me", "let's meet", "sure,", "yes,"}},
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	timePattern  = regexp.MustCompile(`\b([01]?\d|2[0-3])(?::([0-5]\d))?\s*(am|pm)?\b`)
	dayNames     = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
)

// Classify labels text by phrase matching.
func (KeywordClassifier) Classify(_ context.Context, text string) (Result, error) {
	lower := strings.ToLower(text)

	category := ReviewAnswer
	for _, r := range rules {
		if containsAny(lower, r.phrases) {
			category = r.category
			break
		}
	}
	if category == ReviewAnswer && strings.Contains(lower, "?") {
		category = GeneralQuestion
	}

	res := Result{Category: category}
	switch category {
	case Referral:
		res.ReferredEmail = emailPattern.FindString(text)
	case Interested:
		res.SuggestedDays = mentionedDays(lower)
		res.SuggestedTime = mentionedTime(lower)
	}
	return res, nil
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func mentionedDays(lower string) []string {
	var days []string
	for _, d := range dayNames {
		if strings.Contains(lower, d) {
			days = append(days, d)
		}
	}
	return days
}

// mentionedTime returns the first explicit clock time such as "3pm" or
// "14:30" as HH:MM. Bare numbers without am/pm or minutes are ignored.
func mentionedTime(lower string) string {
	for _, m := range timePattern.FindAllStringSubmatch(lower, -1) {
		hourStr, minStr, meridiem := m[1], m[2], m[3]
		if minStr == "" && meridiem == "" {
			continue
		}
		hour, _ := strconv.Atoi(hourStr)
		minute, _ := strconv.Atoi(minStr)
		switch meridiem {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 {
			continue
		}
		return fmt.Sprintf("%02d:%02d", hour, minute)
	}
	return ""
}
