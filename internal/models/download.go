/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// DownloadStatus is the outcome recorded for a retrieval.
type DownloadStatus string

const (
	DownloadComplete DownloadStatus = "complete"
	DownloadFailed   DownloadStatus = "failed"
)

// Download sources.
const (
	SourceGEFS  = "gefs"
	SourceERA5  = "era5"
	SourceTIGGE = "tigge"
)

// DownloadRecord is the ledger row for one retrieved file. ObjectKey is unique
// per source: an S3 key, a CDS target name or a TIGGE target name.
type DownloadRecord struct {
	ID          string         `gorm:"type:char(36);primaryKey" json:"id"`
	Source      string         `gorm:"type:varchar(16);not null;uniqueIndex:idx_download_source_key,priority:1" json:"source"`
	ObjectKey   string         `gorm:"type:varchar(512);not null;uniqueIndex:idx_download_source_key,priority:2" json:"object_key"`
	Path        string         `gorm:"type:text" json:"path"`
	InitTime    time.Time      `gorm:"index" json:"init_time"`
	Lead        int            `json:"lead"`
	Bytes       int64          `json:"bytes"`
	Status      DownloadStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (DownloadRecord) TableName() string {
	return "download_records"
}
