package models

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"
)

func TestDownloadRecordColumnTypesArePortable(t *testing.T) {
	s, err := schema.Parse(&DownloadRecord{}, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}

	id := s.LookUpField("ID")
	if id == nil {
		t.Fatal("expected an ID field")
	}
	// mysql has no uuid column type
	if id.DataType != "char(36)" {
		t.Errorf("expected char(36) id column, got %q", id.DataType)
	}
	if !id.PrimaryKey {
		t.Error("expected ID to be the primary key")
	}

	if s.Table != "download_records" {
		t.Errorf("expected table download_records, got %q", s.Table)
	}
}
