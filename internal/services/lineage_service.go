// internal/services/lineage_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
)

type LineageService struct {
	ledgerBase
	tracker         *ledger.LineageTracker
	descendantLimit int
	group           singleflight.Group
}

// LineageView is an asset's ancestor chain, root first.
type LineageView struct {
	AssetID       uuid.UUID   `json:"asset_id"`
	Ancestors     []uuid.UUID `json:"ancestors"`
	Depth         int         `json:"depth"`
	Truncated     bool        `json:"truncated"`
	CycleDetected bool        `json:"cycle_detected"`
	// Cached is set when the chain came from derivative metadata instead of a walk.
	Cached bool `json:"cached"`
}

type DescendantsView struct {
	AssetID         uuid.UUID   `json:"asset_id"`
	IncludeIndirect bool        `json:"include_indirect"`
	Descendants     []uuid.UUID `json:"descendants"`
	Limit           int         `json:"limit"`
}

func NewLineageService(store *database.LedgerStore, cfg *config.Config) *LineageService {
	limit := cfg.Ledger.DescendantLimit
	if limit <= 0 {
		limit = ledger.DefaultDescendantLimit
	}
	return &LineageService{
		ledgerBase:      newLedgerBase(store, cfg),
		tracker:         ledger.NewLineageTracker(store, store, logrus.WithField("component", "lineage")),
		descendantLimit: limit,
	}
}

func (s *LineageService) Tracker() *ledger.LineageTracker {
	return s.tracker
}

// GetLineage serves the cached chain of a derivative unless recompute is set. Assets
// without derivative metadata are always walked.
func (s *LineageService) GetLineage(ctx context.Context, assetID uuid.UUID, recompute bool) (*LineageView, error) {
	if !recompute {
		snapshot, err := s.store.LoadLedger(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if d := snapshot.Asset.Derivative; d != nil {
			return &LineageView{
				AssetID:   assetID,
				Ancestors: d.LineageIDs(),
				Depth:     d.DerivationLevel,
				Cached:    true,
			}, nil
		}
	}

	lineage, err := s.RecomputeLineage(ctx, assetID, false, uuid.Nil)
	if err != nil {
		return nil, err
	}
	return viewOf(lineage), nil
}

// RecomputeLineage walks the parent chain afresh. Concurrent calls for the same asset share
// one walk, which runs detached from any single caller's cancellation; each caller still
// stops waiting when its own context ends. With persist, a derivative's cached chain and
// depth are rewritten when the walk completed without anomalies.
func (s *LineageService) RecomputeLineage(ctx context.Context, assetID uuid.UUID, persist bool, actorID uuid.UUID) (ledger.Lineage, error) {
	key := assetID.String()
	if persist {
		key = fmt.Sprintf("%s:persist:%s", assetID, actorID)
	}
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		lineage, err := s.tracker.BuildLineage(shared, assetID)
		if err != nil {
			return ledger.Lineage{}, err
		}
		observeLineage(lineage)
		if persist && !lineage.Anomalous() {
			if err := s.persistLineage(shared, lineage, actorID); err != nil {
				return ledger.Lineage{}, err
			}
		}
		return lineage, nil
	})

	select {
	case <-ctx.Done():
		return ledger.Lineage{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ledger.Lineage{}, res.Err
		}
		return res.Val.(ledger.Lineage), nil
	}
}

func (s *LineageService) persistLineage(ctx context.Context, lineage ledger.Lineage, actorID uuid.UUID) (err error) {
	defer func(started time.Time) { observeOperation(opRecomputeLineage, started, err) }(time.Now())

	_, err = withLedgerRetry(ctx, s.retry, opRecomputeLineage, func() (struct{}, error) {
		snapshot, err := s.store.LoadLedger(ctx, lineage.AssetID)
		if err != nil {
			return struct{}{}, err
		}
		d := snapshot.Asset.Derivative
		if d == nil {
			return struct{}{}, nil
		}
		chain := lineage.Strings()
		if d.DerivationLevel == lineage.Depth() && equalStrings(d.Lineage, chain) {
			return struct{}{}, nil
		}

		entry := auditEntry(ctx, models.AuditActionLineageRecomputed, actorID, "asset", lineage.AssetID, lineage.AssetID,
			map[string]interface{}{"lineage": d.Lineage, "derivation_level": d.DerivationLevel},
			map[string]interface{}{"lineage": chain, "derivation_level": lineage.Depth()})
		return struct{}{}, s.store.CommitIfUnchanged(ctx, lineage.AssetID, snapshot.Version, ledger.ChangeSet{},
			database.WithAudit(entry),
			database.WithWrites(func(tx *gorm.DB) error {
				return tx.Model(&models.DerivativeMetadata{}).Where("asset_id = ?", lineage.AssetID).
					Updates(map[string]interface{}{
						"lineage":          models.TextArray(chain),
						"derivation_level": lineage.Depth(),
					}).Error
			}))
	})
	return err
}

// GetDescendants lists children of an asset, or every descendant with includeIndirect.
// A limit of zero or above the configured ceiling uses the ceiling.
func (s *LineageService) GetDescendants(ctx context.Context, assetID uuid.UUID, includeIndirect bool, limit int) (*DescendantsView, error) {
	if _, err := s.store.ParentOf(ctx, assetID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.descendantLimit {
		limit = s.descendantLimit
	}

	ids, err := s.tracker.GetDescendants(ctx, assetID, includeIndirect, limit)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return &DescendantsView{AssetID: assetID, IncludeIndirect: includeIndirect, Descendants: ids, Limit: limit}, nil
}

// ChainFor returns the lineage a new child of parentID would carry.
func (s *LineageService) ChainFor(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	chain, err := s.tracker.ChainFor(ctx, parentID)
	var conflict *ledger.ConflictError
	if errors.As(err, &conflict) {
		lineageAnomalies.WithLabelValues("rejected").Inc()
	}
	return chain, err
}

// AttachParent links a root asset under parentID. Ownership records are not touched and
// cached lineages of existing descendants are left as they are.
func (s *LineageService) AttachParent(ctx context.Context, assetID, parentID, actorID uuid.UUID) (asset *models.Asset, err error) {
	defer func(started time.Time) { observeOperation(opAttachParent, started, err) }(time.Now())

	if assetID == parentID {
		return nil, ledger.NewValidationError("parent_asset_id", "an asset cannot be its own parent")
	}

	return withLedgerRetry(ctx, s.retry, opAttachParent, func() (*models.Asset, error) {
		snapshot, err := s.store.LoadLedger(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if snapshot.Asset.ParentAssetID != nil || snapshot.Asset.Derivative != nil {
			return nil, ledger.NewValidationError("asset_id", "asset %s already has a parent", assetID)
		}
		if _, err := s.store.LoadLedger(ctx, parentID); err != nil {
			if errors.Is(err, ledger.ErrAssetNotFound) {
				return nil, ledger.NewValidationError("parent_asset_id", "parent asset %s does not exist or is retired", parentID)
			}
			return nil, err
		}

		chain, err := s.ChainFor(ctx, parentID)
		if err != nil {
			return nil, err
		}
		for _, ancestor := range chain {
			if ancestor == assetID {
				return nil, ledger.NewValidationError("parent_asset_id", "attaching %s under %s would create a cycle", assetID, parentID)
			}
		}

		entry := auditEntry(ctx, models.AuditActionParentAttached, actorID, "asset", assetID, assetID,
			map[string]interface{}{"parent_asset_id": nil},
			map[string]interface{}{"parent_asset_id": parentID.String(), "lineage": chain})
		err = s.store.CommitIfUnchanged(ctx, assetID, snapshot.Version, ledger.ChangeSet{},
			database.WithAudit(entry),
			database.WithWrites(func(tx *gorm.DB) error {
				return tx.Model(&models.Asset{}).Where("id = ?", assetID).Update("parent_asset_id", parentID).Error
			}))
		if err != nil {
			return nil, err
		}

		updated := snapshot.Asset
		updated.ParentAssetID = &parentID
		updated.LedgerVersion = snapshot.Version + 1
		return &updated, nil
	})
}

func viewOf(l ledger.Lineage) *LineageView {
	ancestors := l.Ancestors
	if ancestors == nil {
		ancestors = []uuid.UUID{}
	}
	return &LineageView{
		AssetID:       l.AssetID,
		Ancestors:     ancestors,
		Depth:         l.Depth(),
		Truncated:     l.Truncated,
		CycleDetected: l.CycleDetected,
	}
}

func equalStrings(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
