/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package prospect

import (
	"strings"

	"github.com/friendsincode/cadence/internal/mail"
	"github.com/friendsincode/cadence/internal/models"
)

// ThreadOutcomeKind classifies what a reply check found.
type ThreadOutcomeKind string

const (
	ThreadQuiet   ThreadOutcomeKind = "quiet"
	ThreadManual  ThreadOutcomeKind = "manual_reply"
	ThreadInbound ThreadOutcomeKind = "inbound_reply"
)

// ThreadOutcome is the newest unprocessed message in a thread, if any.
type ThreadOutcome struct {
	Kind    ThreadOutcomeKind
	Message mail.Message
}

// EvaluateThread scans msgs (oldest first) from the newest end and stops at
// the last processed message. Automated sends recorded on p are skipped.
// The first remaining message decides: from owner means a human took over,
// from anyone else is a reply to classify.
func EvaluateThread(p *models.Prospect, msgs []mail.Message, owner string) ThreadOutcome {
	owner = strings.ToLower(strings.TrimSpace(owner))
	sent := make(map[string]struct{}, len(p.SentMessageIDs))
	for _, id := range p.SentMessageIDs {
		sent[id] = struct{}{}
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.ID != "" && m.ID == p.LastProcessedMessageID {
			break
		}
		if _, ok := sent[m.ID]; ok {
			continue
		}
		if owner != "" && strings.EqualFold(m.From, owner) {
			return ThreadOutcome{Kind: ThreadManual, Message: m}
		}
		return ThreadOutcome{Kind: ThreadInbound, Message: m}
	}
	return ThreadOutcome{Kind: ThreadQuiet}
}
