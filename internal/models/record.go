package models

import (
	"database/sql"
	"time"
)

// RepoRecord is the raw-record index entry: one row per (did, collection,
// rkey) reference observed from ingestion or resolution.
type RepoRecord struct {
	DID        string         `gorm:"primaryKey;type:varchar(255);column:did"`
	Collection string         `gorm:"primaryKey;type:varchar(255);column:collection"`
	Rkey       string         `gorm:"primaryKey;type:varchar(255);column:rkey"`
	Cid        sql.NullString `gorm:"type:varchar(255);column:cid"`
	SyncedAt   time.Time      `gorm:"not null;column:synced_at"`
}

// TableName specifies the table name for RepoRecord
func (RepoRecord) TableName() string {
	return "repo_records"
}
