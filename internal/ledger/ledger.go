/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ledger records completed downloads so reruns can skip them.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cw3e/nwpcycle/internal/models"
)

// Store is a gorm-backed download ledger.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a ledger store over an already migrated database.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Done reports whether source/key has a completed record.
func (s *Store) Done(ctx context.Context, source, key string) (bool, error) {
	var recs []models.DownloadRecord
	res := s.db.WithContext(ctx).
		Where("source = ? AND object_key = ? AND status = ?", source, key, models.DownloadComplete).
		Limit(1).
		Find(&recs)
	if res.Error != nil {
		return false, fmt.Errorf("lookup %s/%s: %w", source, key, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Record inserts or replaces the row for rec.Source/rec.ObjectKey.
func (s *Store) Record(ctx context.Context, rec models.DownloadRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "object_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "init_time", "lead", "bytes", "status", "error", "completed_at", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", rec.Source, rec.ObjectKey, err)
	}

	s.logger.Debug().
		Str("source", rec.Source).
		Str("key", rec.ObjectKey).
		Str("status", string(rec.Status)).
		Msg("ledger updated")
	return nil
}

// List returns every record for source ordered by init time and key.
func (s *Store) List(ctx context.Context, source string) ([]models.DownloadRecord, error) {
	var recs []models.DownloadRecord
	if err := s.db.WithContext(ctx).
		Where("source = ?", source).
		Order("init_time ASC, object_key ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", source, err)
	}
	return recs, nil
}

// Forget deletes the record for source/key so the next run fetches it again.
func (s *Store) Forget(ctx context.Context, source, key string) error {
	if err := s.db.WithContext(ctx).
		Where("source = ? AND object_key = ?", source, key).
		Delete(&models.DownloadRecord{}).Error; err != nil {
		return fmt.Errorf("forget %s/%s: %w", source, key, err)
	}
	return nil
}
