/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequence

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/calendar"
	"github.com/friendsincode/cadence/internal/classifier"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/mail"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/slots"
)

// Mailer sends touchpoints and reads conversation threads.
type Mailer interface {
	Send(ctx context.Context, out mail.Outgoing) (mail.Sent, error)
	// ThreadMessages returns the thread oldest first.
	ThreadMessages(ctx context.Context, threadID string) ([]mail.Message, error)
	BodyOf(m mail.Message) string
}

// Calendar reports busy time and books meetings.
type Calendar interface {
	BusyIntervals(ctx context.Context, start, end time.Time) ([]slots.Interval, error)
	CreateEvent(ctx context.Context, req calendar.EventRequest) (calendar.EventResult, error)
}

// Classifier labels inbound replies.
type Classifier = classifier.Classifier

// Notifier publishes real-time events. Publishing never blocks a run.
type Notifier = events.Publisher

// Store is the persistence a run needs.
type Store interface {
	GetMailAccount(ctx context.Context, userID string) (*models.MailAccount, error)
	GetSequenceConfig(ctx context.Context, userID string) (*models.SequenceConfig, error)
	ListActiveProspects(ctx context.Context, userID string) ([]models.Prospect, error)
	ListCompanyProspects(ctx context.Context, userID, company string) ([]models.Prospect, error)
	GetProspect(ctx context.Context, userID, id string) (*models.Prospect, error)
	FindProspectByEmail(ctx context.Context, userID, email string) (*models.Prospect, error)
	CreateProspect(ctx context.Context, p *models.Prospect) error
	SaveProspect(ctx context.Context, p *models.Prospect) error
	GetTemplate(ctx context.Context, sequenceID string, touchpoint int) (*models.Template, error)
	AppendActivity(ctx context.Context, entry *models.ActivityLog) error
}

// Connector resolves a connected mail account to its mailer and calendar.
type Connector interface {
	Connect(ctx context.Context, acc *models.MailAccount) (Mailer, Calendar, error)
}

// AccountConnector talks SMTP/IMAP with the stored credentials and books
// into the user's stored calendar.
type AccountConnector struct {
	DB              *gorm.DB
	BaseURL         string
	MeetingLinkBase string
	Logger          zerolog.Logger
}

// Connect implements Connector.
func (c AccountConnector) Connect(_ context.Context, acc *models.MailAccount) (Mailer, Calendar, error) {
	return mail.NewAccount(acc, c.Logger),
		calendar.New(c.DB, acc.UserID, c.BaseURL, c.MeetingLinkBase, c.Logger),
		nil
}

type nopNotifier struct{}

func (nopNotifier) Publish(events.EventType, events.Payload) {}
