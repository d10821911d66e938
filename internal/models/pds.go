package models

import "time"

// PDSCacheEntry maps a DID to its current hosting endpoint. Entries older
// than the resolver TTL are treated as absent and re-resolved.
type PDSCacheEntry struct {
	DID         string    `gorm:"primaryKey;type:varchar(255);column:did"`
	PDSEndpoint string    `gorm:"type:text;not null;column:pds_endpoint"`
	CachedAt    time.Time `gorm:"not null;column:cached_at"`
}

// TableName specifies the table name for PDSCacheEntry
func (PDSCacheEntry) TableName() string {
	return "pds_cache"
}
