/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/prospect"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Accounts
		&models.User{},
		&models.MailAccount{},

		// Sequencing
		&models.SequenceConfig{},
		&models.Template{},
		&models.Prospect{},

		// Calendar
		&models.CalendarEvent{},

		// History and notifications
		&models.ActivityLog{},
		&models.Notification{},
	); err != nil {
		return err
	}

	if err := applyProspectEmailIndex(database); err != nil {
		return err
	}
	if err := applyPostgresMeetingOverlapGuard(database); err != nil {
		return err
	}
	if err := normalizeProspectEmails(database); err != nil {
		return err
	}
	if _, err := BackfillDisplayLabels(database); err != nil {
		return err
	}

	return nil
}

// applyProspectEmailIndex keeps one prospect per address and owner.
func applyProspectEmailIndex(database *gorm.DB) error {
	stmt := "CREATE UNIQUE INDEX IF NOT EXISTS idx_prospects_user_email ON prospects (user_id, email)"
	if database.Dialector.Name() == "mysql" {
		// MySQL has no IF NOT EXISTS for indexes.
		if database.Migrator().HasIndex(&models.Prospect{}, "idx_prospects_user_email") {
			return nil
		}
		stmt = "CREATE UNIQUE INDEX idx_prospects_user_email ON prospects (user_id, email)"
	}
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create prospect email index: %w", err)
	}
	return nil
}

func applyPostgresMeetingOverlapGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION prevent_meeting_overlap()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.ends_at <= NEW.starts_at THEN
    RAISE EXCEPTION 'calendar event end must be after start'
      USING ERRCODE = '23514';
  END IF;

  IF NEW.kind = 'meeting' AND EXISTS (
    SELECT 1
    FROM calendar_events ce
    WHERE ce.user_id = NEW.user_id
      AND ce.id <> NEW.id
      AND ce.kind = 'meeting'
      AND tstzrange(ce.starts_at, ce.ends_at, '[)') && tstzrange(NEW.starts_at, NEW.ends_at, '[)')
  ) THEN
    RAISE EXCEPTION 'overlapping meetings are not allowed for user %', NEW.user_id
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_meeting_overlap ON calendar_events;

CREATE TRIGGER trg_prevent_meeting_overlap
BEFORE INSERT OR UPDATE OF user_id, kind, starts_at, ends_at
ON calendar_events
FOR EACH ROW
EXECUTE FUNCTION prevent_meeting_overlap();
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres meeting overlap guard: %w", err)
	}

	return nil
}

func normalizeProspectEmails(database *gorm.DB) error {
	if err := database.Exec("UPDATE prospects SET email = LOWER(TRIM(email)) WHERE email <> LOWER(TRIM(email))").Error; err != nil {
		return fmt.Errorf("normalize prospect emails: %w", err)
	}
	return nil
}

// BackfillDisplayLabels fills display_label for rows written before labels
// were stored. It can also be called on demand after label wording changes.
func BackfillDisplayLabels(database *gorm.DB) (updated int64, err error) {
	type row struct {
		ID     string
		State  models.ProspectState
		Reason models.ProspectReason
	}
	var rows []row
	if err := database.
		Model(&models.Prospect{}).
		Select("id, state, reason").
		Where("display_label IS NULL OR display_label = ''").
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("backfill display labels query: %w", err)
	}

	var count int64
	for _, r := range rows {
		if err := database.Model(&models.Prospect{}).
			Where("id = ?", r.ID).
			Update("display_label", prospect.Label(r.State, r.Reason)).Error; err == nil {
			count++
		}
	}
	return count, nil
}
