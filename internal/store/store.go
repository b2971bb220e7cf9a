/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the gorm-backed persistence used by the runner, the
// scheduler and the HTTP API.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/cadence/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("already exists")
)

// Store wraps a gorm handle.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need a transaction.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// Users

// GetUser loads a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// GetUserByEmail loads a user by login email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// CreateUser inserts u, assigning an ID when empty.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Mail accounts

// GetMailAccount returns the user's connected mail account. Accounts that
// exist but are not connected count as missing.
func (s *Store) GetMailAccount(ctx context.Context, userID string) (*models.MailAccount, error) {
	var acc models.MailAccount
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND connected = ?", userID, true).
		First(&acc).Error
	if err != nil {
		return nil, notFound(err, "mail account")
	}
	return &acc, nil
}

// SaveMailAccount inserts or updates the user's mail account.
func (s *Store) SaveMailAccount(ctx context.Context, acc *models.MailAccount) error {
	if acc.ID == "" {
		var existing models.MailAccount
		err := s.db.WithContext(ctx).First(&existing, "user_id = ?", acc.UserID).Error
		switch {
		case err == nil:
			acc.ID = existing.ID
			acc.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			acc.ID = uuid.NewString()
		default:
			return fmt.Errorf("load mail account: %w", err)
		}
	}
	if err := s.db.WithContext(ctx).Save(acc).Error; err != nil {
		return fmt.Errorf("save mail account: %w", err)
	}
	return nil
}

// Sequence configs

// GetSequenceConfig loads the user's sequence configuration.
func (s *Store) GetSequenceConfig(ctx context.Context, userID string) (*models.SequenceConfig, error) {
	var cfg models.SequenceConfig
	if err := s.db.WithContext(ctx).First(&cfg, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err, "sequence config")
	}
	return &cfg, nil
}

// SaveSequenceConfig inserts or replaces the user's configuration.
func (s *Store) SaveSequenceConfig(ctx context.Context, cfg *models.SequenceConfig) error {
	if cfg.ID == "" {
		existing, err := s.GetSequenceConfig(ctx, cfg.UserID)
		switch {
		case err == nil:
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
			if cfg.LastAgentRun == nil {
				cfg.LastAgentRun = existing.LastAgentRun
			}
		case errors.Is(err, ErrNotFound):
			cfg.ID = uuid.NewString()
		default:
			return err
		}
	}
	if err := s.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return fmt.Errorf("save sequence config: %w", err)
	}
	return nil
}

// ListSequenceConfigs returns every configuration the scheduler considers.
func (s *Store) ListSequenceConfigs(ctx context.Context) ([]models.SequenceConfig, error) {
	var cfgs []models.SequenceConfig
	if err := s.db.WithContext(ctx).Order("user_id").Find(&cfgs).Error; err != nil {
		return nil, fmt.Errorf("list sequence configs: %w", err)
	}
	return cfgs, nil
}

// UpdateLastRun stamps the user's last attempted run.
func (s *Store) UpdateLastRun(ctx context.Context, userID string, at time.Time) error {
	at = at.UTC()
	res := s.db.WithContext(ctx).
		Model(&models.SequenceConfig{}).
		Where("user_id = ?", userID).
		Update("last_agent_run", at)
	if res.Error != nil {
		return fmt.Errorf("update last run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sequence config: %w", ErrNotFound)
	}
	return nil
}

// Templates

// GetTemplate returns the template for a touchpoint.
func (s *Store) GetTemplate(ctx context.Context, sequenceID string, touchpoint int) (*models.Template, error) {
	var tpl models.Template
	err := s.db.WithContext(ctx).
		Where("sequence_id = ? AND touchpoint_index = ?", sequenceID, touchpoint).
		First(&tpl).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("template %d", touchpoint))
	}
	return &tpl, nil
}

// ListTemplates returns a sequence's templates in touchpoint order.
func (s *Store) ListTemplates(ctx context.Context, sequenceID string) ([]models.Template, error) {
	var tpls []models.Template
	err := s.db.WithContext(ctx).
		Where("sequence_id = ?", sequenceID).
		Order("touchpoint_index").
		Find(&tpls).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return tpls, nil
}

// UpsertTemplates writes templates keyed by sequence and touchpoint.
func (s *Store) UpsertTemplates(ctx context.Context, sequenceID string, tpls []models.Template) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range tpls {
			tpl := tpls[i]
			tpl.SequenceID = sequenceID
			if tpl.ID == "" {
				tpl.ID = uuid.NewString()
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "sequence_id"}, {Name: "touchpoint_index"}},
				DoUpdates: clause.AssignmentColumns([]string{"subject", "body", "updated_at"}),
			}).Create(&tpl).Error
			if err != nil {
				return fmt.Errorf("upsert template %d: %w", tpl.TouchpointIndex, err)
			}
		}
		return nil
	})
}

// Activity

// AppendActivity records an activity entry.
func (s *Store) AppendActivity(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest entries for a user, optionally scoped to
// one prospect.
func (s *Store) ListActivity(ctx context.Context, userID, prospectID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if prospectID != "" {
		q = q.Where("prospect_id = ?", prospectID)
	}
	var entries []models.ActivityLog
	if err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return entries, nil
}

// Notifications

// CreateNotification stores a notification.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("notification %s: %w", n.ID, ErrDuplicate)
		}
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's newest notifications.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var out []models.Notification
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead sets ReadAt on one of the user's notifications.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification: %w", ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the user.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", at.UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountUnreadNotifications returns the user's unread count.
func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}
