// internal/database/ledger_store.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/utils"
)

// ErrDuplicateRequest is returned when an idempotency key was already consumed.
var ErrDuplicateRequest = errors.New("idempotency key already used")

// LedgerSnapshot is an asset's full record set as of one ledger version.
type LedgerSnapshot struct {
	Asset   models.Asset
	Records []models.OwnershipRecord
	Version int64
}

// LedgerStore persists ownership records. Every write to an asset's ledger goes through a
// compare-and-swap on assets.ledger_version.
type LedgerStore struct {
	db *gorm.DB
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) DB() *gorm.DB {
	return s.db
}

// LoadLedger reads a live (not retired) asset and all of its records.
func (s *LedgerStore) LoadLedger(ctx context.Context, assetID uuid.UUID) (*LedgerSnapshot, error) {
	db := s.db.WithContext(ctx)

	var asset models.Asset
	if err := db.Preload("Derivative").First(&asset, "id = ?", assetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("asset %s: %w", assetID, ledger.ErrAssetNotFound)
		}
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}

	var records []models.OwnershipRecord
	if err := db.Where("asset_id = ?", assetID).Order("start_date ASC, created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load ownership records: %w", err)
	}

	return &LedgerSnapshot{Asset: asset, Records: records, Version: asset.LedgerVersion}, nil
}

func (s *LedgerStore) FindRecord(ctx context.Context, ownershipID uuid.UUID) (*models.OwnershipRecord, error) {
	var record models.OwnershipRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", ownershipID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ownership %s: %w", ownershipID, ledger.ErrOwnershipNotFound)
		}
		return nil, fmt.Errorf("failed to load ownership record: %w", err)
	}
	return &record, nil
}

type commitOptions struct {
	audit       []*models.AuditLog
	idempotency *models.IdempotencyKey
	writes      []func(tx *gorm.DB) error
}

type CommitOption func(*commitOptions)

// WithAudit appends entries to the asset's audit chain in the same transaction.
func WithAudit(entries ...*models.AuditLog) CommitOption {
	return func(o *commitOptions) {
		o.audit = append(o.audit, entries...)
	}
}

// WithIdempotencyKey records key; the commit fails with ErrDuplicateRequest if it exists.
func WithIdempotencyKey(key *models.IdempotencyKey) CommitOption {
	return func(o *commitOptions) {
		o.idempotency = key
	}
}

// WithWrites runs fn inside the commit transaction after the record changes.
func WithWrites(fn func(tx *gorm.DB) error) CommitOption {
	return func(o *commitOptions) {
		o.writes = append(o.writes, fn)
	}
}

// CommitIfUnchanged applies changes only if the asset's ledger is still at expectedVersion.
// A lost race returns ledger.ErrConcurrentModification and writes nothing.
func (s *LedgerStore) CommitIfUnchanged(ctx context.Context, assetID uuid.UUID, expectedVersion int64, changes ledger.ChangeSet, opts ...CommitOption) error {
	var o commitOptions
	for _, opt := range opts {
		opt(&o)
	}

	return WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := bumpVersion(tx, assetID, expectedVersion); err != nil {
			return err
		}
		if err := writeChanges(tx, changes); err != nil {
			return err
		}
		return finishCommit(tx, &o)
	})
}

type NewAsset struct {
	Asset      *models.Asset
	Derivative *models.DerivativeMetadata
	Records    []models.OwnershipRecord
	// GuardAssetID, when set, pins another asset's ledger (the parent) to GuardVersion
	// for the duration of the insert.
	GuardAssetID *uuid.UUID
	GuardVersion int64
}

// CreateAsset inserts an asset with its opening records.
func (s *LedgerStore) CreateAsset(ctx context.Context, in NewAsset, opts ...CommitOption) error {
	var o commitOptions
	for _, opt := range opts {
		opt(&o)
	}

	return WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if in.GuardAssetID != nil {
			if err := bumpVersion(tx, *in.GuardAssetID, in.GuardVersion); err != nil {
				return err
			}
		}

		var existing int64
		if err := tx.Unscoped().Model(&models.Asset{}).Where("id = ?", in.Asset.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check asset id: %w", err)
		}
		if existing > 0 {
			return &ledger.ConflictError{Reason: fmt.Sprintf("asset id %s is already in use", in.Asset.ID)}
		}

		if err := tx.Omit(clause.Associations).Create(in.Asset).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ledger.ConflictError{Reason: fmt.Sprintf("asset id %s is already in use", in.Asset.ID), Err: err}
			}
			return fmt.Errorf("failed to create asset: %w", err)
		}
		if in.Derivative != nil {
			in.Derivative.AssetID = in.Asset.ID
			if err := tx.Create(in.Derivative).Error; err != nil {
				return fmt.Errorf("failed to create derivative metadata: %w", err)
			}
		}
		if err := writeChanges(tx, ledger.ChangeSet{Created: in.Records}); err != nil {
			return err
		}
		return finishCommit(tx, &o)
	})
}

func bumpVersion(tx *gorm.DB, assetID uuid.UUID, expectedVersion int64) error {
	res := tx.Model(&models.Asset{}).
		Where("id = ? AND ledger_version = ?", assetID, expectedVersion).
		UpdateColumn("ledger_version", gorm.Expr("ledger_version + 1"))
	if res.Error != nil {
		return fmt.Errorf("failed to advance ledger version: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ledger.ErrConcurrentModification
	}
	return nil
}

func writeChanges(tx *gorm.DB, changes ledger.ChangeSet) error {
	for i := range changes.Updated {
		r := &changes.Updated[i]
		if err := tx.Omit(clause.Associations).Save(r).Error; err != nil {
			return fmt.Errorf("failed to update ownership record %s: %w", r.ID, err)
		}
	}
	for i := range changes.Created {
		r := &changes.Created[i]
		if err := tx.Omit(clause.Associations).Create(r).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Same creator, same asset, same start instant: a clock tie with another writer.
				return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
			}
			return fmt.Errorf("failed to create ownership record: %w", err)
		}
	}
	return nil
}

func finishCommit(tx *gorm.DB, o *commitOptions) error {
	for _, fn := range o.writes {
		if err := fn(tx); err != nil {
			return err
		}
	}
	if o.idempotency != nil {
		var count int64
		if err := tx.Model(&models.IdempotencyKey{}).Where("key = ?", o.idempotency.Key).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if count > 0 {
			return ErrDuplicateRequest
		}
		if err := tx.Create(o.idempotency).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateRequest
			}
			return fmt.Errorf("failed to record idempotency key: %w", err)
		}
	}
	return appendAudit(tx, o.audit)
}

// LookupIdempotencyKey returns the stored key, or nil if it has not been used.
func (s *LedgerStore) LookupIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyKey, error) {
	if key == "" {
		return nil, nil
	}
	var stored models.IdempotencyKey
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return &stored, nil
}

// ParentOf resolves parent pointers for lineage walks, retired assets included.
func (s *LedgerStore) ParentOf(ctx context.Context, assetID uuid.UUID) (*uuid.UUID, error) {
	var asset models.Asset
	err := s.db.WithContext(ctx).Unscoped().Select("id", "parent_asset_id").First(&asset, "id = ?", assetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("asset %s: %w", assetID, ledger.ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load parent: %w", err)
	}
	return asset.ParentAssetID, nil
}

func (s *LedgerStore) ChildrenOf(ctx context.Context, assetID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Unscoped().Model(&models.Asset{}).
		Where("parent_asset_id = ?", assetID).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return ids, nil
}

// AuditTrail returns an asset's audit entries in chain order.
func (s *LedgerStore) AuditTrail(ctx context.Context, assetID uuid.UUID) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	if err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("sequence ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	return entries, nil
}

type ChainReport struct {
	AssetID  uuid.UUID `json:"asset_id"`
	Entries  int       `json:"entries"`
	Intact   bool      `json:"intact"`
	BrokenAt int64     `json:"broken_at,omitempty"`
}

// VerifyAuditChain recomputes every entry hash of an asset's audit chain.
func (s *LedgerStore) VerifyAuditChain(ctx context.Context, assetID uuid.UUID) (*ChainReport, error) {
	entries, err := s.AuditTrail(ctx, assetID)
	if err != nil {
		return nil, err
	}

	report := &ChainReport{AssetID: assetID, Entries: len(entries), Intact: true}
	prev := ""
	for i := range entries {
		e := &entries[i]
		if e.PreviousHash != prev || AuditEntryHash(e) != e.EntryHash {
			report.Intact = false
			report.BrokenAt = e.Sequence
			break
		}
		prev = e.EntryHash
	}
	return report, nil
}

func appendAudit(tx *gorm.DB, entries []*models.AuditLog) error {
	for _, entry := range entries {
		var prev models.AuditLog
		q := tx.Model(&models.AuditLog{}).Order("sequence DESC")
		if entry.AssetID != nil {
			q = q.Where("asset_id = ?", *entry.AssetID)
		} else {
			q = q.Where("asset_id IS NULL")
		}

		err := q.Take(&prev).Error
		switch {
		case err == nil:
			entry.Sequence = prev.Sequence + 1
			entry.PreviousHash = prev.EntryHash
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry.Sequence = 1
			entry.PreviousHash = ""
		default:
			return fmt.Errorf("failed to read audit chain head: %w", err)
		}

		entry.EntryHash = AuditEntryHash(entry)
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to create audit log: %w", err)
		}
	}
	return nil
}

// AuditEntryHash covers the chain link and the entry content, not its storage timestamps.
func AuditEntryHash(e *models.AuditLog) string {
	oldValues, _ := json.Marshal(e.OldValues)
	newValues, _ := json.Marshal(e.NewValues)
	return utils.HashFields(
		e.PreviousHash,
		strconv.FormatInt(e.Sequence, 10),
		string(e.Action),
		e.ResourceType,
		optionalID(e.ResourceID),
		optionalID(e.AssetID),
		optionalID(e.ActorID),
		string(oldValues),
		string(newValues),
	)
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
