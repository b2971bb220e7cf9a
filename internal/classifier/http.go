/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClassifier delegates classification to a remote text-classification
// service that answers with a Result document.
type HTTPClassifier struct {
	url    string
	apiKey string
	client *http.Client
	logger zerolog.Logger
}

type classifyRequest struct {
	Text       string     `json:"text"`
	Categories []Category `json:"categories"`
}

// NewHTTPClassifier creates a classifier posting to url.
func NewHTTPClassifier(url, apiKey string, timeout time.Duration, logger zerolog.Logger) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClassifier{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify posts text and validates the returned result.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(classifyRequest{
		Text:       text,
		Categories: []Category{Interested, NotInterested, Referral, WrongEmail, OutOfOffice, GeneralQuestion, Bounce, ReviewAnswer},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Cadence-Classifier/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if res.Category, err = ParseCategory(string(res.Category)); err != nil {
		return Result{}, err
	}
	if err := res.Validate(); err != nil {
		c.logger.Debug().Err(err).Str("category", string(res.Category)).Msg("dropping invalid scheduling hints")
		res = Result{Category: res.Category, ReferredEmail: validEmailOrEmpty(res)}
	}
	return res, nil
}

// validEmailOrEmpty keeps the referral address when it alone passes validation.
func validEmailOrEmpty(res Result) string {
	if res.ReferredEmail == "" {
		return ""
	}
	if (Result{Category: res.Category, ReferredEmail: res.ReferredEmail}).Validate() != nil {
		return ""
	}
	return res.ReferredEmail
}
