/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/friendsincode/cadence/internal/models"
)

// ProspectFilter narrows ListProspects.
type ProspectFilter struct {
	State  models.ProspectState
	Search string
	Limit  int
	Offset int
}

// ListActiveProspects returns the prospects a run must look at: armed or
// holding a thread, minus those already booked.
func (s *Store) ListActiveProspects(ctx context.Context, userID string) ([]models.Prospect, error) {
	var out []models.Prospect
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("(send_sequence_active = ? OR (thread_id IS NOT NULL AND thread_id <> ''))", true).
		Where("NOT (state = ? AND reason = ?)", models.ProspectStateTerminal, models.ReasonMeetingScheduled).
		Order("created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list active prospects: %w", err)
	}
	return out, nil
}

// ListCompanyProspects returns the user's prospects whose normalized company
// equals company.
func (s *Store) ListCompanyProspects(ctx context.Context, userID, company string) ([]models.Prospect, error) {
	key := strings.ToLower(strings.TrimSpace(company))
	if key == "" {
		return nil, nil
	}
	var out []models.Prospect
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(TRIM(company)) = ?", userID, key).
		Order("created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list company prospects: %w", err)
	}
	return out, nil
}

// ListProspects pages through a user's prospects.
func (s *Store) ListProspects(ctx context.Context, userID string, f ProspectFilter) ([]models.Prospect, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Prospect{}).Where("user_id = ?", userID)
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("(LOWER(email) LIKE ? OR LOWER(name) LIKE ? OR LOWER(company) LIKE ?)", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count prospects: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []models.Prospect
	if err := q.Order("created_at DESC, id").Limit(limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list prospects: %w", err)
	}
	return out, total, nil
}

// GetProspect loads one of the user's prospects.
func (s *Store) GetProspect(ctx context.Context, userID, id string) (*models.Prospect, error) {
	var p models.Prospect
	if err := s.db.WithContext(ctx).First(&p, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, notFound(err, "prospect")
	}
	return &p, nil
}

// FindProspectByEmail looks a prospect up by normalized address.
func (s *Store) FindProspectByEmail(ctx context.Context, userID, email string) (*models.Prospect, error) {
	var p models.Prospect
	err := s.db.WithContext(ctx).
		First(&p, "user_id = ? AND email = ?", userID, strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		return nil, notFound(err, "prospect")
	}
	return &p, nil
}

// CreateProspect inserts p. A second prospect with the same address for the
// same user yields ErrDuplicate.
func (s *Store) CreateProspect(ctx context.Context, p *models.Prospect) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("prospect %s: %w", p.Email, ErrDuplicate)
		}
		return fmt.Errorf("create prospect: %w", err)
	}
	return nil
}

// SaveProspect writes every column of p.
func (s *Store) SaveProspect(ctx context.Context, p *models.Prospect) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("save prospect %s: %w", p.ID, err)
	}
	return nil
}
