package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/standard-site/siteindex/internal/atproto"
	"github.com/standard-site/siteindex/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RepoRecordRepository provides raw-record index operations
type RepoRecordRepository struct {
	*Repository
}

// NewRepoRecordRepository creates a new repo record repository
func NewRepoRecordRepository(repo *Repository) *RepoRecordRepository {
	return &RepoRecordRepository{Repository: repo}
}

// Upsert inserts or refreshes a raw-record index entry
func (r *RepoRecordRepository) Upsert(ctx context.Context, rec *models.RepoRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "did"}, {Name: "collection"}, {Name: "rkey"}},
		DoUpdates: clause.AssignmentColumns([]string{"cid", "synced_at"}),
	}).Create(rec).Error
}

// Delete removes a raw-record index entry
func (r *RepoRecordRepository) Delete(ctx context.Context, did, collection, rkey string) error {
	return r.db.WithContext(ctx).
		Where("did = ? AND collection = ? AND rkey = ?", did, collection, rkey).
		Delete(&models.RepoRecord{}).Error
}

// ListByDID retrieves records for a single DID, newest rkey first
func (r *RepoRecordRepository) ListByDID(ctx context.Context, did, collection string, limit, offset int) ([]*models.RepoRecord, error) {
	var records []*models.RepoRecord
	if err := r.db.WithContext(ctx).
		Where("did = ? AND collection = ?", did, collection).
		Order("rkey DESC").
		Limit(limit).Offset(offset).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListPage retrieves a page of records across all DIDs, newest rkey first
func (r *RepoRecordRepository) ListPage(ctx context.Context, collection string, limit, offset int) ([]*models.RepoRecord, error) {
	var records []*models.RepoRecord
	if err := r.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("rkey DESC").
		Limit(limit).Offset(offset).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListAll retrieves every record reference for a collection
func (r *RepoRecordRepository) ListAll(ctx context.Context, collection string) ([]*models.RepoRecord, error) {
	var records []*models.RepoRecord
	if err := r.db.WithContext(ctx).
		Where("collection = ?", collection).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of raw-record index entries
func (r *RepoRecordRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RepoRecord{}).Count(&count).Error
	return count, err
}

// PDSCacheRepository provides PDS cache operations
type PDSCacheRepository struct {
	*Repository
}

// NewPDSCacheRepository creates a new PDS cache repository
func NewPDSCacheRepository(repo *Repository) *PDSCacheRepository {
	return &PDSCacheRepository{Repository: repo}
}

// Get retrieves a cache entry by DID
func (r *PDSCacheRepository) Get(ctx context.Context, did string) (*models.PDSCacheEntry, error) {
	var entry models.PDSCacheEntry
	if err := r.db.WithContext(ctx).Where("did = ?", did).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Put inserts or refreshes a cache entry
func (r *PDSCacheRepository) Put(ctx context.Context, did, endpoint string, cachedAt time.Time) error {
	entry := &models.PDSCacheEntry{
		DID:         did,
		PDSEndpoint: endpoint,
		CachedAt:    cachedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "did"}},
		DoUpdates: clause.AssignmentColumns([]string{"pds_endpoint", "cached_at"}),
	}).Create(entry).Error
}

// Count returns the number of cached PDS endpoints
func (r *PDSCacheRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PDSCacheEntry{}).Count(&count).Error
	return count, err
}

// documentUpdateColumns are the derived fields refreshed together on every
// successful resolution.
var documentUpdateColumns = []string{
	"did", "collection", "rkey",
	"title", "description", "path", "site", "content", "text_content",
	"cover_image_cid", "cover_image_url", "bsky_post_ref", "tags",
	"published_at", "updated_at",
	"pub_url", "pub_name", "pub_description", "pub_icon_cid", "pub_icon_url",
	"view_url", "pds_endpoint", "verified", "resolved_at", "stale_at",
}

// ResolvedDocumentRepository provides resolved-document operations
type ResolvedDocumentRepository struct {
	*Repository
}

// NewResolvedDocumentRepository creates a new resolved document repository
func NewResolvedDocumentRepository(repo *Repository) *ResolvedDocumentRepository {
	return &ResolvedDocumentRepository{Repository: repo}
}

// Upsert writes a resolved document in a single atomic statement: either all
// derived fields update together or the previous row stays untouched.
func (r *ResolvedDocumentRepository) Upsert(ctx context.Context, doc *models.ResolvedDocument) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uri"}},
		DoUpdates: clause.AssignmentColumns(documentUpdateColumns),
	}).Create(doc).Error
}

// GetByURI retrieves a resolved document by its record address
func (r *ResolvedDocumentRepository) GetByURI(ctx context.Context, uri string) (*models.ResolvedDocument, error) {
	var doc models.ResolvedDocument
	if err := r.db.WithContext(ctx).Where("uri = ?", uri).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// ListVerified retrieves the public feed page: verified documents ordered by
// publish time descending.
func (r *ResolvedDocumentRepository) ListVerified(ctx context.Context, limit, offset int) ([]*models.ResolvedDocument, error) {
	var docs []*models.ResolvedDocument
	if err := r.db.WithContext(ctx).
		Where("verified = ?", true).
		Order("published_at DESC NULLS LAST, rkey DESC").
		Limit(limit).Offset(offset).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// ListStale retrieves documents whose freshness deadline has passed
func (r *ResolvedDocumentRepository) ListStale(ctx context.Context, now time.Time, limit int) ([]*models.ResolvedDocument, error) {
	var docs []*models.ResolvedDocument
	if err := r.db.WithContext(ctx).
		Where("stale_at < ? OR stale_at IS NULL", now).
		Order("stale_at ASC").
		Limit(limit).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// MarkAllStale forces every document's freshness deadline into the past
func (r *ResolvedDocumentRepository) MarkAllStale(ctx context.Context, staleAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ResolvedDocument{}).
		Where("1 = 1").
		Update("stale_at", staleAt)
	return result.RowsAffected, result.Error
}

// Count returns the number of resolved documents
func (r *ResolvedDocumentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ResolvedDocument{}).Count(&count).Error
	return count, err
}

// Store bundles the repositories behind the pipeline's store contract.
type Store struct {
	Records   *RepoRecordRepository
	PDS       *PDSCacheRepository
	Documents *ResolvedDocumentRepository

	db *gorm.DB
}

// NewStore creates a store backed by the given database
func NewStore(database *DB) *Store {
	repo := NewRepository(database.DB)
	return &Store{
		Records:   NewRepoRecordRepository(repo),
		PDS:       NewPDSCacheRepository(repo),
		Documents: NewResolvedDocumentRepository(repo),
		db:        database.DB,
	}
}

// UpsertRepoRecord inserts or refreshes a raw-record index entry
func (s *Store) UpsertRepoRecord(ctx context.Context, rec *models.RepoRecord) error {
	return s.Records.Upsert(ctx, rec)
}

// UpsertDocument writes a resolved document atomically
func (s *Store) UpsertDocument(ctx context.Context, doc *models.ResolvedDocument) error {
	return s.Documents.Upsert(ctx, doc)
}

// DeleteDocument cascades deletion of both the raw-record index entry and
// the resolved document for an address, in one transaction.
func (s *Store) DeleteDocument(ctx context.Context, did, collection, rkey string) error {
	uri := atproto.BuildURI(did, collection, rkey)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("did = ? AND collection = ? AND rkey = ?", did, collection, rkey).
			Delete(&models.RepoRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete repo record: %w", err)
		}
		if err := tx.Where("uri = ?", uri).
			Delete(&models.ResolvedDocument{}).Error; err != nil {
			return fmt.Errorf("failed to delete resolved document: %w", err)
		}
		return nil
	})
}

// GetPDS retrieves a cached endpoint and its write time for a DID
func (s *Store) GetPDS(ctx context.Context, did string) (string, time.Time, error) {
	entry, err := s.PDS.Get(ctx, did)
	if err != nil {
		return "", time.Time{}, err
	}
	if entry == nil {
		return "", time.Time{}, nil
	}
	return entry.PDSEndpoint, entry.CachedAt, nil
}

// PutPDS inserts or refreshes a cached endpoint for a DID
func (s *Store) PutPDS(ctx context.Context, did, endpoint string, cachedAt time.Time) error {
	return s.PDS.Put(ctx, did, endpoint, cachedAt)
}

// ListVerifiedDocuments retrieves the public feed page
func (s *Store) ListVerifiedDocuments(ctx context.Context, limit, offset int) ([]*models.ResolvedDocument, error) {
	return s.Documents.ListVerified(ctx, limit, offset)
}

// ListRecordsByDID retrieves raw-record entries for one DID
func (s *Store) ListRecordsByDID(ctx context.Context, did, collection string, limit, offset int) ([]*models.RepoRecord, error) {
	return s.Records.ListByDID(ctx, did, collection, limit, offset)
}

// ListRecordPage retrieves a page of raw-record entries across all DIDs
func (s *Store) ListRecordPage(ctx context.Context, collection string, limit, offset int) ([]*models.RepoRecord, error) {
	return s.Records.ListPage(ctx, collection, limit, offset)
}

// ListAllRecords retrieves every raw-record entry for a collection
func (s *Store) ListAllRecords(ctx context.Context, collection string) ([]*models.RepoRecord, error) {
	return s.Records.ListAll(ctx, collection)
}

// MarkAllStale forces every resolved document's freshness deadline into the past
func (s *Store) MarkAllStale(ctx context.Context, staleAt time.Time) (int64, error) {
	return s.Documents.MarkAllStale(ctx, staleAt)
}

// CountRecords returns the number of raw-record index entries
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	return s.Records.Count(ctx)
}

// CountPDSEntries returns the number of cached PDS endpoints
func (s *Store) CountPDSEntries(ctx context.Context) (int64, error) {
	return s.PDS.Count(ctx)
}

// CountDocuments returns the number of resolved documents
func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	return s.Documents.Count(ctx)
}
