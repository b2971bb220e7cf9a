/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package templates renders touchpoint emails and imports template sets
// from YAML.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	texttemplate "text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/validation"
)

// ErrInvalidTemplate is returned for templates that fail to parse.
var ErrInvalidTemplate = errors.New("invalid template")

// Data is the value templates execute against.
type Data struct {
	Name       string
	FirstName  string
	Company    string
	Email      string
	SenderName string
}

// DataFor builds template data for a prospect.
func DataFor(p *models.Prospect, senderName string) Data {
	return Data{
		Name:       p.Name,
		FirstName:  p.FirstName(),
		Company:    p.Company,
		Email:      p.Email,
		SenderName: senderName,
	}
}

// Rendered is a ready-to-send message.
type Rendered struct {
	Subject  string
	HTMLBody string
}

// Render executes tpl. The subject is a header and is rendered as plain
// text; the body is HTML-escaped. Bodies without markup keep their line
// breaks.
func Render(tpl *models.Template, data Data) (Rendered, error) {
	subj, err := texttemplate.New("subject").Option("missingkey=zero").Parse(tpl.Subject)
	if err != nil {
		return Rendered{}, fmt.Errorf("%w: subject: %v", ErrInvalidTemplate, err)
	}
	body, err := htmltemplate.New("body").Option("missingkey=zero").Parse(tpl.Body)
	if err != nil {
		return Rendered{}, fmt.Errorf("%w: body: %v", ErrInvalidTemplate, err)
	}

	var sb, bb bytes.Buffer
	if err := subj.Execute(&sb, data); err != nil {
		return Rendered{}, fmt.Errorf("render subject: %w", err)
	}
	if err := body.Execute(&bb, data); err != nil {
		return Rendered{}, fmt.Errorf("render body: %w", err)
	}

	html := bb.String()
	if !strings.Contains(tpl.Body, "<") {
		html = strings.ReplaceAll(html, "\n", "<br>\n")
	}
	return Rendered{
		Subject:  strings.Join(strings.Fields(sb.String()), " "),
		HTMLBody: html,
	}, nil
}

// ReplySubject prefixes subject with "Re: " once.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

var confirmation = htmltemplate.Must(htmltemplate.New("confirmation").Parse(
	`<p>Hi {{.FirstName}},</p>
<p>Thanks for getting back to me. I have booked us for {{.When}}.</p>
{{if .Link}}<p>Join here: <a href="{{.Link}}">{{.Link}}</a></p>
{{end}}<p>Looking forward to it,<br>{{.SenderName}}</p>`))

// Confirmation renders the in-thread reply announcing a booked meeting.
// The time is shown in the prospect's zone when known.
func Confirmation(data Data, start time.Time, loc *time.Location, link string) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	var b bytes.Buffer
	err := confirmation.Execute(&b, struct {
		Data
		When string
		Link string
	}{
		Data: data,
		When: start.In(loc).Format("Monday, January 2 at 15:04 MST"),
		Link: link,
	})
	if err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return b.String(), nil
}

// Set is the YAML layout accepted by Import.
type Set struct {
	Templates []models.Template `yaml:"templates"`
}

// Import decodes a template set, validates each entry and checks that the
// touchpoints run 1..n without gaps.
func Import(r io.Reader) ([]models.Template, error) {
	var set Set
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	if len(set.Templates) == 0 {
		return nil, fmt.Errorf("%w: no templates", ErrInvalidTemplate)
	}

	seen := make(map[int]bool, len(set.Templates))
	for i := range set.Templates {
		tpl := &set.Templates[i]
		if err := validation.Struct(tpl); err != nil {
			return nil, fmt.Errorf("template %d: %w", i+1, err)
		}
		if seen[tpl.TouchpointIndex] {
			return nil, fmt.Errorf("%w: touchpoint %d defined twice", ErrInvalidTemplate, tpl.TouchpointIndex)
		}
		seen[tpl.TouchpointIndex] = true
		if _, err := Render(tpl, Data{}); err != nil {
			return nil, fmt.Errorf("template %d: %w", tpl.TouchpointIndex, err)
		}
	}
	for i := 1; i <= len(set.Templates); i++ {
		if !seen[i] {
			return nil, fmt.Errorf("%w: touchpoint %d missing", ErrInvalidTemplate, i)
		}
	}
	return set.Templates, nil
}
