// internal/services/ownership_service.go
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
)

type OwnershipService struct {
	ledgerBase
}

type OwnerShare struct {
	OwnershipID   uuid.UUID            `json:"ownership_id"`
	CreatorID     uuid.UUID            `json:"creator_id"`
	ShareBps      int                  `json:"share_bps"`
	OwnershipType models.OwnershipType `json:"ownership_type"`
	DisputeStatus models.DisputeStatus `json:"dispute_status"`
	StartDate     time.Time            `json:"start_date"`
	EndDate       *time.Time           `json:"end_date,omitempty"`
}

type OwnershipSummary struct {
	AssetID         uuid.UUID                    `json:"asset_id"`
	AsOf            time.Time                    `json:"as_of"`
	TotalActiveBps  int                          `json:"total_active_bps"`
	OwnerCount      int                          `json:"owner_count"`
	Owners          []OwnerShare                 `json:"owners"`
	SharesByType    map[models.OwnershipType]int `json:"shares_by_type"`
	DisputedCount   int                          `json:"disputed_count"`
	IsDerivative    bool                         `json:"is_derivative"`
	DerivationLevel int                          `json:"derivation_level"`
	LedgerVersion   int64                        `json:"ledger_version"`
}

type OwnershipHistory struct {
	AssetID    uuid.UUID                `json:"asset_id"`
	Records    []models.OwnershipRecord `json:"records"`
	AuditTrail []models.AuditLog        `json:"audit_trail"`
}

type CreatorAssetsFilter struct {
	IncludeExpired bool
	OwnershipType  *models.OwnershipType
}

// ProposedRecord is an ownership record submitted for a dry-run validation.
type ProposedRecord struct {
	CreatorID     uuid.UUID            `json:"creator_id" validate:"required"`
	ShareBps      int                  `json:"share_bps"`
	OwnershipType models.OwnershipType `json:"ownership_type" validate:"omitempty,ownership_type"`
	StartDate     time.Time            `json:"start_date" validate:"required"`
	EndDate       *time.Time           `json:"end_date,omitempty"`
}

type PreviewValidationRequest struct {
	AssetID *uuid.UUID `json:"asset_id,omitempty"`
	// MergeWithCurrent validates the proposals together with the asset's stored records.
	MergeWithCurrent bool             `json:"merge_with_current"`
	Records          []ProposedRecord `json:"records" validate:"required,min=1,max=500,dive"`
}

// AssetAudit is the stored-ledger check of one asset.
type AssetAudit struct {
	AssetID    uuid.UUID          `json:"asset_id"`
	Records    int                `json:"records"`
	Valid      bool               `json:"valid"`
	Violations []ledger.Violation `json:"violations,omitempty"`
}

func NewOwnershipService(store *database.LedgerStore, cfg *config.Config) *OwnershipService {
	return &OwnershipService{ledgerBase: newLedgerBase(store, cfg)}
}

// GetOwners returns the records active at the given instant, or now.
func (s *OwnershipService) GetOwners(ctx context.Context, assetID uuid.UUID, at *time.Time) ([]models.OwnershipRecord, error) {
	snapshot, err := s.store.LoadLedger(ctx, assetID)
	if err != nil {
		return nil, err
	}
	t := s.now()
	if at != nil {
		t = at.UTC()
	}
	owners := ledger.ActiveAt(snapshot.Records, t)
	if owners == nil {
		owners = []models.OwnershipRecord{}
	}
	return owners, nil
}

func (s *OwnershipService) GetOwnershipSummary(ctx context.Context, assetID uuid.UUID) (*OwnershipSummary, error) {
	snapshot, err := s.store.LoadLedger(ctx, assetID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &OwnershipSummary{
		AssetID:       assetID,
		AsOf:          now,
		Owners:        []OwnerShare{},
		SharesByType:  map[models.OwnershipType]int{},
		LedgerVersion: snapshot.Version,
	}
	if d := snapshot.Asset.Derivative; d != nil {
		summary.IsDerivative = true
		summary.DerivationLevel = d.DerivationLevel
	}

	creators := map[uuid.UUID]bool{}
	for _, r := range ledger.ActiveAt(snapshot.Records, now) {
		summary.TotalActiveBps += r.ShareBps
		summary.SharesByType[r.OwnershipType] += r.ShareBps
		summary.Owners = append(summary.Owners, shareOf(r))
		creators[r.CreatorID] = true
	}
	summary.OwnerCount = len(creators)
	for _, r := range snapshot.Records {
		if r.DisputeStatus == models.DisputeStatusDisputed {
			summary.DisputedCount++
		}
	}
	return summary, nil
}

// GetOwnershipHistory returns every record of the asset ordered by start, ended ones
// included, with the asset's audit trail.
func (s *OwnershipService) GetOwnershipHistory(ctx context.Context, assetID uuid.UUID) (*OwnershipHistory, error) {
	snapshot, err := s.store.LoadLedger(ctx, assetID)
	if err != nil {
		return nil, err
	}
	trail, err := s.store.AuditTrail(ctx, assetID)
	if err != nil {
		return nil, err
	}

	records := snapshot.Records
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartDate.Before(records[j].StartDate)
	})
	return &OwnershipHistory{AssetID: assetID, Records: records, AuditTrail: trail}, nil
}

// GetCreatorAssets lists a creator's records on live assets, newest first. Records no
// longer active are skipped unless IncludeExpired is set.
func (s *OwnershipService) GetCreatorAssets(ctx context.Context, creatorID uuid.UUID, filter CreatorAssetsFilter) ([]models.OwnershipRecord, error) {
	query := s.store.DB().WithContext(ctx).
		Select("ownership_records.*").
		Joins("JOIN assets ON assets.id = ownership_records.asset_id AND assets.deleted_at IS NULL").
		Preload("Asset").
		Where("ownership_records.creator_id = ?", creatorID)
	if filter.OwnershipType != nil {
		query = query.Where("ownership_records.ownership_type = ?", *filter.OwnershipType)
	}

	var records []models.OwnershipRecord
	if err := query.Order("ownership_records.start_date DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get creator assets: %w", err)
	}

	now := s.now()
	out := make([]models.OwnershipRecord, 0, len(records))
	for _, r := range records {
		if r.Asset == nil {
			continue
		}
		if !filter.IncludeExpired && !r.ActiveAt(now) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// PreviewValidation runs the invariant checks on proposed records without writing.
func (s *OwnershipService) PreviewValidation(ctx context.Context, req PreviewValidationRequest) (ledger.ValidationResult, error) {
	assetID := uuid.Nil
	var records []models.OwnershipRecord
	if req.AssetID != nil {
		assetID = *req.AssetID
		if req.MergeWithCurrent {
			snapshot, err := s.store.LoadLedger(ctx, assetID)
			if err != nil {
				return ledger.ValidationResult{}, err
			}
			records = append(records, snapshot.Records...)
		}
	} else if req.MergeWithCurrent {
		return ledger.ValidationResult{}, ledger.NewValidationError("asset_id", "is required to merge with current records")
	}

	for _, p := range req.Records {
		ownershipType := p.OwnershipType
		if ownershipType == "" {
			ownershipType = models.OwnershipTypePrimary
		}
		var end *time.Time
		if p.EndDate != nil {
			e := p.EndDate.UTC()
			end = &e
		}
		records = append(records, models.OwnershipRecord{
			BaseModel:     models.BaseModel{ID: uuid.New()},
			AssetID:       assetID,
			CreatorID:     p.CreatorID,
			ShareBps:      p.ShareBps,
			OwnershipType: ownershipType,
			StartDate:     p.StartDate.UTC(),
			EndDate:       end,
			DisputeStatus: models.DisputeStatusNone,
		})
	}
	return ledger.ValidateTemporalOwnership(records), nil
}

// AuditLedgers validates every stored live ledger, in batches.
func (s *OwnershipService) AuditLedgers(ctx context.Context, onlyInvalid bool) ([]AssetAudit, error) {
	var (
		out    []AssetAudit
		assets []models.Asset
	)
	err := s.store.DB().WithContext(ctx).Select("id").
		FindInBatches(&assets, 200, func(tx *gorm.DB, batch int) error {
			for _, a := range assets {
				audit, err := s.AuditLedger(ctx, a.ID)
				if err != nil {
					return err
				}
				if onlyInvalid && audit.Valid {
					continue
				}
				out = append(out, *audit)
			}
			return nil
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to audit ledgers: %w", err)
	}
	return out, nil
}

func (s *OwnershipService) AuditLedger(ctx context.Context, assetID uuid.UUID) (*AssetAudit, error) {
	snapshot, err := s.store.LoadLedger(ctx, assetID)
	if err != nil {
		return nil, err
	}
	res := ledger.Validate(snapshot.Records)
	return &AssetAudit{AssetID: assetID, Records: len(snapshot.Records), Valid: res.Valid, Violations: res.Violations}, nil
}

func shareOf(r models.OwnershipRecord) OwnerShare {
	return OwnerShare{
		OwnershipID:   r.ID,
		CreatorID:     r.CreatorID,
		ShareBps:      r.ShareBps,
		OwnershipType: r.OwnershipType,
		DisputeStatus: r.DisputeStatus,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
	}
}

// VerifyAuditChain checks the hash chain of an asset's audit trail, retired assets included.
func (s *OwnershipService) VerifyAuditChain(ctx context.Context, assetID uuid.UUID) (*database.ChainReport, error) {
	if _, err := s.store.ParentOf(ctx, assetID); err != nil {
		return nil, err
	}
	return s.store.VerifyAuditChain(ctx, assetID)
}
