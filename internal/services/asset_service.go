// internal/services/asset_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
)

type AssetService struct {
	ledgerBase
	lineage *LineageService
	ratio   ledger.SplitRatio
}

type ConfirmAssetRequest struct {
	AssetID        uuid.UUID  `json:"asset_id" validate:"required"`
	ParentAssetID  *uuid.UUID `json:"parent_asset_id,omitempty"`
	CreatorID      uuid.UUID  `json:"creator_id" validate:"required"`
	IdempotencyKey string     `json:"-"`
}

type CreateDerivativeRequest struct {
	ParentAssetID           uuid.UUID             `json:"parent_asset_id" validate:"required"`
	NewAssetID              uuid.UUID             `json:"new_asset_id" validate:"required"`
	CreatorID               uuid.UUID             `json:"creator_id" validate:"required"`
	Ratio                   *ledger.SplitRatio    `json:"ratio,omitempty"`
	DerivativeType          models.DerivativeType `json:"derivative_type" validate:"omitempty,derivative_type"`
	Modifications           string                `json:"modifications" validate:"max=5000"`
	Tools                   []string              `json:"tools" validate:"max=50,dive,max=100"`
	AllowCommercialUse      *bool                 `json:"allow_commercial_use,omitempty"`
	AllowFurtherDerivatives *bool                 `json:"allow_further_derivatives,omitempty"`
	IdempotencyKey          string                `json:"-"`
}

type UpdatePermissionsRequest struct {
	AllowCommercialUse      *bool `json:"allow_commercial_use,omitempty"`
	AllowFurtherDerivatives *bool `json:"allow_further_derivatives,omitempty"`
}

type RetireAssetRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// AssetResult is an asset together with the records that were current when it was
// returned.
type AssetResult struct {
	Asset            *models.Asset            `json:"asset"`
	OwnershipRecords []models.OwnershipRecord `json:"ownership_records"`
	Lineage          []uuid.UUID              `json:"lineage"`
	Replayed         bool                     `json:"replayed"`
}

func NewAssetService(store *database.LedgerStore, cfg *config.Config, lineage *LineageService) *AssetService {
	return &AssetService{
		ledgerBase: newLedgerBase(store, cfg),
		lineage:    lineage,
		ratio: ledger.SplitRatio{
			DerivativeCreatorBps:    cfg.Ledger.DerivativeCreatorBps,
			OriginalContributorsBps: cfg.Ledger.OriginalContributorsBps,
		},
	}
}

// ConfirmAsset opens the ledger of a newly confirmed asset. A root asset gets a single
// full-share primary record; an asset with a parent goes through the derivative split
// with the configured ratio.
func (s *AssetService) ConfirmAsset(ctx context.Context, req ConfirmAssetRequest) (result *AssetResult, err error) {
	if req.ParentAssetID != nil {
		return s.CreateDerivative(ctx, CreateDerivativeRequest{
			ParentAssetID:  *req.ParentAssetID,
			NewAssetID:     req.AssetID,
			CreatorID:      req.CreatorID,
			DerivativeType: models.DerivativeTypeOther,
			IdempotencyKey: req.IdempotencyKey,
		})
	}

	defer func(started time.Time) { observeOperation(opConfirmAsset, started, err) }(time.Now())

	if req.AssetID == uuid.Nil {
		return nil, ledger.NewValidationError("asset_id", "is required")
	}
	if req.CreatorID == uuid.Nil {
		return nil, ledger.NewValidationError("creator_id", "is required")
	}
	if replay, err := s.replayOf(ctx, req.IdempotencyKey, opConfirmAsset, req.AssetID); err != nil || replay != nil {
		if err != nil {
			return nil, err
		}
		return s.replay(ctx, *replay)
	}

	now := s.now()
	creator := req.CreatorID
	records := []models.OwnershipRecord{{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		AssetID:       req.AssetID,
		CreatorID:     creator,
		ShareBps:      models.FullShareBps,
		OwnershipType: models.OwnershipTypePrimary,
		StartDate:     now,
		DisputeStatus: models.DisputeStatusNone,
		Provenance:    models.JSONB{"source": "asset_confirmation"},
		CreatedBy:     &creator,
		UpdatedBy:     &creator,
	}}
	if res := ledger.Validate(records); !res.Valid {
		return nil, &ledger.InternalInvariantError{Operation: opConfirmAsset, Violations: res.Violations}
	}

	asset := &models.Asset{BaseModel: models.BaseModel{ID: req.AssetID}, CreatorID: creator}
	entry := auditEntry(ctx, models.AuditActionAssetConfirmed, creator, "asset", asset.ID, asset.ID, nil,
		map[string]interface{}{"creator_id": creator.String(), "ownership_records": records})

	err = s.store.CreateAsset(ctx, database.NewAsset{Asset: asset, Records: records},
		commitOptions(entry, idempotencyKey(req.IdempotencyKey, opConfirmAsset, asset.ID))...)
	if errors.Is(err, database.ErrDuplicateRequest) {
		return s.replayKey(ctx, req.IdempotencyKey, opConfirmAsset, req.AssetID)
	}
	if err != nil {
		return nil, err
	}

	return &AssetResult{Asset: asset, OwnershipRecords: records, Lineage: []uuid.UUID{}}, nil
}

// CreateDerivative creates an asset derived from ParentAssetID and splits its ownership
// between the derivative's creator and the parent's current owners.
func (s *AssetService) CreateDerivative(ctx context.Context, req CreateDerivativeRequest) (result *AssetResult, err error) {
	defer func(started time.Time) {
		logInternal(opCreateDerivative, err)
		observeOperation(opCreateDerivative, started, err)
	}(time.Now())

	ratio := s.ratio
	if req.Ratio != nil {
		ratio = *req.Ratio
	}
	if err := s.checkDerivativeRequest(req, ratio); err != nil {
		return nil, err
	}
	if replay, err := s.replayOf(ctx, req.IdempotencyKey, opCreateDerivative, req.NewAssetID); err != nil || replay != nil {
		if err != nil {
			return nil, err
		}
		return s.replay(ctx, *replay)
	}

	result, err = withLedgerRetry(ctx, s.retry, opCreateDerivative, func() (*AssetResult, error) {
		return s.createDerivative(ctx, req, ratio)
	})
	if errors.Is(err, database.ErrDuplicateRequest) {
		return s.replayKey(ctx, req.IdempotencyKey, opCreateDerivative, req.NewAssetID)
	}
	return result, err
}

func (s *AssetService) checkDerivativeRequest(req CreateDerivativeRequest, ratio ledger.SplitRatio) error {
	switch {
	case req.ParentAssetID == uuid.Nil:
		return ledger.NewValidationError("parent_asset_id", "is required")
	case req.NewAssetID == uuid.Nil:
		return ledger.NewValidationError("new_asset_id", "is required")
	case req.CreatorID == uuid.Nil:
		return ledger.NewValidationError("creator_id", "is required")
	case req.NewAssetID == req.ParentAssetID:
		return ledger.NewValidationError("new_asset_id", "must differ from parent_asset_id")
	case req.DerivativeType != "" && !req.DerivativeType.Valid():
		return ledger.NewValidationError("derivative_type", "unknown derivative type %q", req.DerivativeType)
	}
	return ratio.Validate()
}

func (s *AssetService) createDerivative(ctx context.Context, req CreateDerivativeRequest, ratio ledger.SplitRatio) (*AssetResult, error) {
	parent, err := s.store.LoadLedger(ctx, req.ParentAssetID)
	if errors.Is(err, ledger.ErrAssetNotFound) {
		return nil, ledger.NewValidationError("parent_asset_id", "parent asset %s does not exist or is retired", req.ParentAssetID)
	}
	if err != nil {
		return nil, err
	}
	if d := parent.Asset.Derivative; d != nil && !d.AllowFurtherDerivatives {
		return nil, ledger.NewValidationError("parent_asset_id", "asset %s does not allow further derivatives", req.ParentAssetID)
	}

	chain, err := s.lineage.ChainFor(ctx, req.ParentAssetID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	creator := req.CreatorID
	owners := ledger.ActiveAt(parent.Records, now)
	records, err := ledger.ComputeDerivativeSplit(owners, creator, ratio, ledger.SplitOptions{
		AssetID:       req.NewAssetID,
		ParentAssetID: req.ParentAssetID,
		EffectiveAt:   now,
		ActorID:       &creator,
	})
	if err != nil {
		return nil, err
	}

	derivativeType := req.DerivativeType
	if derivativeType == "" {
		derivativeType = models.DerivativeTypeOther
	}
	lineage := ledger.Lineage{AssetID: req.NewAssetID, Ancestors: chain}
	parentID := req.ParentAssetID
	asset := &models.Asset{
		BaseModel:     models.BaseModel{ID: req.NewAssetID},
		ParentAssetID: &parentID,
		CreatorID:     creator,
	}
	derivative := &models.DerivativeMetadata{
		AssetID:                 req.NewAssetID,
		SourceAssetID:           parentID,
		DerivativeType:          derivativeType,
		Modifications:           strings.TrimSpace(req.Modifications),
		Tools:                   models.TextArray(req.Tools),
		DerivationLevel:         lineage.Depth(),
		Lineage:                 models.TextArray(lineage.Strings()),
		CreatorRatioBps:         ratio.DerivativeCreatorBps,
		ContributorRatioBps:     ratio.OriginalContributorsBps,
		AllowCommercialUse:      boolOr(req.AllowCommercialUse, true),
		AllowFurtherDerivatives: boolOr(req.AllowFurtherDerivatives, true),
	}

	entry := auditEntry(ctx, models.AuditActionDerivativeCreated, creator, "asset", asset.ID, asset.ID, nil,
		map[string]interface{}{
			"parent_asset_id":   parentID.String(),
			"parent_version":    parent.Version,
			"ratio":             ratio,
			"lineage":           lineage.Strings(),
			"ownership_records": records,
		})

	err = s.store.CreateAsset(ctx, database.NewAsset{
		Asset:        asset,
		Derivative:   derivative,
		Records:      records,
		GuardAssetID: &parentID,
		GuardVersion: parent.Version,
	}, commitOptions(entry, idempotencyKey(req.IdempotencyKey, opCreateDerivative, asset.ID))...)
	if err != nil {
		return nil, err
	}

	asset.Derivative = derivative
	return &AssetResult{Asset: asset, OwnershipRecords: records, Lineage: chain}, nil
}

// RetireAsset soft-deletes an asset and ends every record still open. Lineage lookups
// keep resolving through retired assets.
func (s *AssetService) RetireAsset(ctx context.Context, assetID, requesterID uuid.UUID, asAdmin bool, req RetireAssetRequest) (result *AssetResult, err error) {
	defer func(started time.Time) { observeOperation(opRetireAsset, started, err) }(time.Now())

	return withLedgerRetry(ctx, s.retry, opRetireAsset, func() (*AssetResult, error) {
		snapshot, err := s.store.LoadLedger(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if !asAdmin && snapshot.Asset.CreatorID != requesterID {
			return nil, ErrForbidden
		}

		changes, err := ledger.PlanRetirement(snapshot.Records, s.now(), &requesterID)
		if err != nil {
			return nil, err
		}

		entry := auditEntry(ctx, models.AuditActionAssetRetired, requesterID, "asset", assetID, assetID,
			map[string]interface{}{"ownership_records": snapshot.Records},
			map[string]interface{}{"ended_records": changes.Updated, "reason": req.Reason})
		err = s.store.CommitIfUnchanged(ctx, assetID, snapshot.Version, changes,
			database.WithAudit(entry),
			database.WithWrites(func(tx *gorm.DB) error {
				return tx.Delete(&models.Asset{}, "id = ?", assetID).Error
			}))
		if err != nil {
			return nil, err
		}

		asset := snapshot.Asset
		asset.LedgerVersion = snapshot.Version + 1
		return &AssetResult{Asset: &asset, OwnershipRecords: changes.Apply(snapshot.Records)}, nil
	})
}

// UpdateDerivativePermissions changes the permission flags of a derivative, the only
// mutable part of its metadata.
func (s *AssetService) UpdateDerivativePermissions(ctx context.Context, assetID, requesterID uuid.UUID, asAdmin bool, req UpdatePermissionsRequest) (derivative *models.DerivativeMetadata, err error) {
	defer func(started time.Time) { observeOperation(opUpdatePermissions, started, err) }(time.Now())

	if req.AllowCommercialUse == nil && req.AllowFurtherDerivatives == nil {
		return nil, ledger.NewValidationError("permissions", "at least one permission must be given")
	}

	return withLedgerRetry(ctx, s.retry, opUpdatePermissions, func() (*models.DerivativeMetadata, error) {
		snapshot, err := s.store.LoadLedger(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if !asAdmin && snapshot.Asset.CreatorID != requesterID {
			return nil, ErrForbidden
		}
		current := snapshot.Asset.Derivative
		if current == nil {
			return nil, ledger.NewValidationError("asset_id", "asset %s is not a derivative", assetID)
		}

		updated := *current
		updates := map[string]interface{}{}
		if req.AllowCommercialUse != nil {
			updated.AllowCommercialUse = *req.AllowCommercialUse
			updates["allow_commercial_use"] = *req.AllowCommercialUse
		}
		if req.AllowFurtherDerivatives != nil {
			updated.AllowFurtherDerivatives = *req.AllowFurtherDerivatives
			updates["allow_further_derivatives"] = *req.AllowFurtherDerivatives
		}

		entry := auditEntry(ctx, models.AuditActionPermissionsUpdated, requesterID, "derivative_metadata", current.ID, assetID,
			permissionsOf(current), permissionsOf(&updated))
		err = s.store.CommitIfUnchanged(ctx, assetID, snapshot.Version, ledger.ChangeSet{},
			database.WithAudit(entry),
			database.WithWrites(func(tx *gorm.DB) error {
				return tx.Model(&models.DerivativeMetadata{}).Where("asset_id = ?", assetID).Updates(updates).Error
			}))
		if err != nil {
			return nil, err
		}
		return &updated, nil
	})
}

// GetAsset returns a live asset with its current ledger.
func (s *AssetService) GetAsset(ctx context.Context, assetID uuid.UUID) (*AssetResult, error) {
	snapshot, err := s.store.LoadLedger(ctx, assetID)
	if err != nil {
		return nil, err
	}
	lineage := []uuid.UUID{}
	if d := snapshot.Asset.Derivative; d != nil {
		lineage = d.LineageIDs()
	}
	return &AssetResult{Asset: &snapshot.Asset, OwnershipRecords: snapshot.Records, Lineage: lineage}, nil
}

func (s *AssetService) replayKey(ctx context.Context, key, operation string, target uuid.UUID) (*AssetResult, error) {
	replay, err := s.replayOf(ctx, key, operation, target)
	if err != nil {
		return nil, err
	}
	if replay == nil {
		return nil, fmt.Errorf("idempotency key %q vanished after a duplicate commit", key)
	}
	return s.replay(ctx, *replay)
}

func (s *AssetService) replay(ctx context.Context, assetID uuid.UUID) (*AssetResult, error) {
	result, err := s.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	result.Replayed = true
	return result, nil
}

func permissionsOf(d *models.DerivativeMetadata) map[string]interface{} {
	return map[string]interface{}{
		"allow_commercial_use":      d.AllowCommercialUse,
		"allow_further_derivatives": d.AllowFurtherDerivatives,
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
