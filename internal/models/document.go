package models

import (
	"database/sql"
	"time"
)

// ResolvedDocument is the denormalized, servable projection of a document
// record, keyed by its canonical at:// address. Created and overwritten only
// by the resolution pipeline; one row per address.
type ResolvedDocument struct {
	URI        string `gorm:"primaryKey;type:varchar(512);column:uri"`
	DID        string `gorm:"type:varchar(255);not null;column:did"`
	Collection string `gorm:"type:varchar(255);not null;column:collection"`
	Rkey       string `gorm:"type:varchar(255);not null;column:rkey"`

	Title         sql.NullString `gorm:"type:text;column:title"`
	Description   sql.NullString `gorm:"type:text;column:description"`
	Path          sql.NullString `gorm:"type:text;column:path"`
	Site          sql.NullString `gorm:"type:text;column:site"`
	Content       sql.NullString `gorm:"type:text;column:content"`
	TextContent   sql.NullString `gorm:"type:text;column:text_content"`
	CoverImageCid sql.NullString `gorm:"type:varchar(255);column:cover_image_cid"`
	CoverImageURL sql.NullString `gorm:"type:text;column:cover_image_url"`
	BskyPostRef   sql.NullString `gorm:"type:text;column:bsky_post_ref"`
	Tags          sql.NullString `gorm:"type:text;column:tags"`
	PublishedAt   sql.NullString `gorm:"type:varchar(64);column:published_at"`
	UpdatedAt     sql.NullString `gorm:"type:varchar(64);column:updated_at"`

	PubURL         sql.NullString `gorm:"type:text;column:pub_url"`
	PubName        sql.NullString `gorm:"type:text;column:pub_name"`
	PubDescription sql.NullString `gorm:"type:text;column:pub_description"`
	PubIconCid     sql.NullString `gorm:"type:varchar(255);column:pub_icon_cid"`
	PubIconURL     sql.NullString `gorm:"type:text;column:pub_icon_url"`

	ViewURL     sql.NullString `gorm:"type:text;column:view_url"`
	PDSEndpoint sql.NullString `gorm:"type:text;column:pds_endpoint"`
	Verified    bool           `gorm:"not null;default:false;column:verified"`
	ResolvedAt  time.Time      `gorm:"not null;column:resolved_at"`
	StaleAt     time.Time      `gorm:"not null;column:stale_at"`
}

// TableName specifies the table name for ResolvedDocument
func (ResolvedDocument) TableName() string {
	return "resolved_documents"
}
