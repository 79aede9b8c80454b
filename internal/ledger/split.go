package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/models"
)

// SplitRatio divides a derivative between its creator and the parent's owners.
type SplitRatio struct {
	DerivativeCreatorBps    int `json:"derivative_creator_bps"`
	OriginalContributorsBps int `json:"original_contributors_bps"`
}

var DefaultSplitRatio = SplitRatio{DerivativeCreatorBps: 6000, OriginalContributorsBps: 4000}

func (r SplitRatio) Validate() error {
	if r.DerivativeCreatorBps <= 0 {
		return NewValidationError("ratio.derivative_creator_bps", "must be greater than 0, got %d", r.DerivativeCreatorBps)
	}
	if r.OriginalContributorsBps < 0 {
		return NewValidationError("ratio.original_contributors_bps", "must not be negative, got %d", r.OriginalContributorsBps)
	}
	if sum := r.DerivativeCreatorBps + r.OriginalContributorsBps; sum != models.FullShareBps {
		return NewValidationError("ratio", "must sum to %d bps, got %d", models.FullShareBps, sum)
	}
	return nil
}

type SplitOptions struct {
	AssetID       uuid.UUID
	ParentAssetID uuid.UUID
	EffectiveAt   time.Time
	ActorID       *uuid.UUID
}

// ComputeDerivativeSplit produces the opening records of a derivative asset. Each parent
// owner receives floor(share * contributorsBps / totalParentShares) as a contributor; the
// flooring shortfall stays with the derivative creator's primary record. A parent owner who
// is also the derivative creator has that portion folded into the primary record.
func ComputeDerivativeSplit(parentOwners []models.OwnershipRecord, derivativeCreatorID uuid.UUID, ratio SplitRatio, opts SplitOptions) ([]models.OwnershipRecord, error) {
	if err := ratio.Validate(); err != nil {
		return nil, err
	}
	if derivativeCreatorID == uuid.Nil {
		return nil, NewValidationError("creator_id", "is required")
	}

	// Aggregate per creator, keeping first-seen order so output is reproducible.
	shares := make(map[uuid.UUID]int)
	var order []uuid.UUID
	totalParent := 0
	for _, owner := range parentOwners {
		if owner.ShareBps <= 0 {
			continue
		}
		if _, seen := shares[owner.CreatorID]; !seen {
			order = append(order, owner.CreatorID)
		}
		shares[owner.CreatorID] += owner.ShareBps
		totalParent += owner.ShareBps
	}
	if totalParent == 0 {
		return nil, NewValidationError("parent_asset_id", "parent asset has no active owners")
	}

	contributors := make([]models.OwnershipRecord, 0, len(order))
	distributed := 0
	folded := 0
	for _, creatorID := range order {
		share := int(int64(shares[creatorID]) * int64(ratio.OriginalContributorsBps) / int64(totalParent))
		if share == 0 {
			continue
		}
		if creatorID == derivativeCreatorID {
			folded += share
			continue
		}
		distributed += share
		contributors = append(contributors, models.OwnershipRecord{
			BaseModel:     models.BaseModel{ID: uuid.New()},
			AssetID:       opts.AssetID,
			CreatorID:     creatorID,
			ShareBps:      share,
			OwnershipType: models.OwnershipTypeContributor,
			StartDate:     opts.EffectiveAt,
			DisputeStatus: models.DisputeStatusNone,
			Provenance: models.JSONB{
				"source":           "derivative_split",
				"parent_asset_id":  opts.ParentAssetID.String(),
				"parent_share_bps": shares[creatorID],
			},
			CreatedBy: opts.ActorID,
			UpdatedBy: opts.ActorID,
		})
	}

	shortfall := ratio.OriginalContributorsBps - distributed - folded
	primary := models.OwnershipRecord{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		AssetID:       opts.AssetID,
		CreatorID:     derivativeCreatorID,
		ShareBps:      ratio.DerivativeCreatorBps + folded + shortfall,
		OwnershipType: models.OwnershipTypePrimary,
		StartDate:     opts.EffectiveAt,
		DisputeStatus: models.DisputeStatusNone,
		Provenance: models.JSONB{
			"source":                    "derivative_split",
			"parent_asset_id":           opts.ParentAssetID.String(),
			"derivative_creator_bps":    ratio.DerivativeCreatorBps,
			"original_contributors_bps": ratio.OriginalContributorsBps,
			"rounding_remainder_bps":    shortfall,
			"folded_contribution_bps":   folded,
		},
		CreatedBy: opts.ActorID,
		UpdatedBy: opts.ActorID,
	}

	records := append([]models.OwnershipRecord{primary}, contributors...)
	if res := Validate(records); !res.Valid {
		return nil, &InternalInvariantError{Operation: "derivative split", Violations: res.Violations}
	}
	return records, nil
}
