// Package ledger holds the ownership rules: invariant validation, lineage walks, derivative
// splits, dispute transitions and transfer planning. Nothing here touches storage.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/models"
)

type ViolationKind string

const (
	ViolationConservation    ViolationKind = "conservation"
	ViolationShareOutOfRange ViolationKind = "share_out_of_range"
	ViolationEmptyWindow     ViolationKind = "empty_window"
	ViolationCreatorOverlap  ViolationKind = "creator_overlap"
)

// Violation describes one broken rule. For conservation violations Start/End bound the
// interval (End nil = open-ended) and Observed is the summed share.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	AssetID   *uuid.UUID    `json:"asset_id,omitempty"`
	Start     *time.Time    `json:"start,omitempty"`
	End       *time.Time    `json:"end,omitempty"`
	Observed  int           `json:"observed"`
	Expected  int           `json:"expected,omitempty"`
	RecordID  *uuid.UUID    `json:"record_id,omitempty"`
	CreatorID *uuid.UUID    `json:"creator_id,omitempty"`
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationConservation:
		end := "open"
		if v.End != nil {
			end = v.End.Format(time.RFC3339Nano)
		}
		return fmt.Sprintf("interval [%s, %s) sums to %d bps, expected %d",
			v.Start.Format(time.RFC3339Nano), end, v.Observed, v.Expected)
	case ViolationShareOutOfRange:
		return fmt.Sprintf("record %s has share %d bps outside (0, %d]", idString(v.RecordID), v.Observed, models.FullShareBps)
	case ViolationEmptyWindow:
		return fmt.Sprintf("record %s has an empty validity window", idString(v.RecordID))
	case ViolationCreatorOverlap:
		return fmt.Sprintf("creator %s has overlapping windows starting %s", idString(v.CreatorID), v.Start.Format(time.RFC3339Nano))
	default:
		return string(v.Kind)
	}
}

func idString(id *uuid.UUID) string {
	if id == nil {
		return "<nil>"
	}
	return id.String()
}

type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
}

// Err returns an *InvariantViolationError when the result is invalid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &InvariantViolationError{Violations: r.Violations}
}

// Validate checks one asset's record set: share bounds, non-empty windows, per-creator
// non-overlap and conservation at every covered instant.
func Validate(records []models.OwnershipRecord) ValidationResult {
	var violations []Violation

	usable := make([]*models.OwnershipRecord, 0, len(records))
	for i := range records {
		r := &records[i]
		id := r.ID
		if r.ShareBps <= 0 || r.ShareBps > models.FullShareBps {
			violations = append(violations, Violation{
				Kind:     ViolationShareOutOfRange,
				Observed: r.ShareBps,
				RecordID: &id,
			})
		}
		if r.EndDate != nil && !r.EndDate.After(r.StartDate) {
			violations = append(violations, Violation{Kind: ViolationEmptyWindow, RecordID: &id})
			continue
		}
		usable = append(usable, r)
	}

	violations = append(violations, creatorOverlaps(usable)...)
	violations = append(violations, conservationGaps(usable)...)

	return ValidationResult{Valid: len(violations) == 0, Violations: violations}
}

// ValidateTemporalOwnership validates a proposed record set that may span several assets,
// without committing anything. Violations carry the asset they belong to.
func ValidateTemporalOwnership(records []models.OwnershipRecord) ValidationResult {
	byAsset := make(map[uuid.UUID][]models.OwnershipRecord)
	var order []uuid.UUID
	for _, r := range records {
		if _, ok := byAsset[r.AssetID]; !ok {
			order = append(order, r.AssetID)
		}
		byAsset[r.AssetID] = append(byAsset[r.AssetID], r)
	}

	result := ValidationResult{Valid: true}
	for _, assetID := range order {
		res := Validate(byAsset[assetID])
		for _, v := range res.Violations {
			id := assetID
			v.AssetID = &id
			result.Violations = append(result.Violations, v)
		}
	}
	result.Valid = len(result.Violations) == 0
	return result
}

// conservationGaps sweeps over every window boundary. Each elementary interval between the
// first and last boundary must sum to exactly FullShareBps, as must the open tail when
// any record is open-ended.
func conservationGaps(records []*models.OwnershipRecord) []Violation {
	if len(records) == 0 {
		return nil
	}

	deltas := make(map[int64]int)
	instants := make(map[int64]time.Time)
	openEnded := false
	mark := func(t time.Time, d int) {
		k := t.UnixNano()
		deltas[k] += d
		instants[k] = t
	}
	for _, r := range records {
		mark(r.StartDate, r.ShareBps)
		if r.EndDate == nil {
			openEnded = true
			continue
		}
		mark(*r.EndDate, -r.ShareBps)
	}

	keys := make([]int64, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var violations []Violation
	running := 0
	for i, k := range keys {
		running += deltas[k]
		var end *time.Time
		if i+1 < len(keys) {
			t := instants[keys[i+1]]
			end = &t
		} else if !openEnded {
			break
		}
		if running != models.FullShareBps {
			start := instants[k]
			violations = append(violations, Violation{
				Kind:     ViolationConservation,
				Start:    &start,
				End:      end,
				Observed: running,
				Expected: models.FullShareBps,
			})
		}
	}
	return violations
}

func creatorOverlaps(records []*models.OwnershipRecord) []Violation {
	byCreator := make(map[uuid.UUID][]*models.OwnershipRecord)
	for _, r := range records {
		byCreator[r.CreatorID] = append(byCreator[r.CreatorID], r)
	}

	creators := make([]uuid.UUID, 0, len(byCreator))
	for id := range byCreator {
		creators = append(creators, id)
	}
	sort.Slice(creators, func(i, j int) bool { return creators[i].String() < creators[j].String() })

	var violations []Violation
	for _, creatorID := range creators {
		windows := byCreator[creatorID]
		sort.SliceStable(windows, func(i, j int) bool { return windows[i].StartDate.Before(windows[j].StartDate) })

		var reach *time.Time
		unbounded := false
		for i, r := range windows {
			if i > 0 && (unbounded || r.StartDate.Before(*reach)) {
				id, cid := r.ID, creatorID
				start := r.StartDate
				violations = append(violations, Violation{
					Kind:      ViolationCreatorOverlap,
					Start:     &start,
					RecordID:  &id,
					CreatorID: &cid,
				})
			}
			switch {
			case r.EndDate == nil:
				unbounded = true
			case reach == nil || r.EndDate.After(*reach):
				end := *r.EndDate
				reach = &end
			}
		}
	}
	return violations
}

// ActiveAt returns the records whose window contains t, ordered by share descending.
func ActiveAt(records []models.OwnershipRecord, t time.Time) []models.OwnershipRecord {
	var out []models.OwnershipRecord
	for _, r := range records {
		if r.ActiveAt(t) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ShareBps > out[j].ShareBps })
	return out
}

// ActiveShare sums the share a creator holds at t.
func ActiveShare(records []models.OwnershipRecord, creatorID uuid.UUID, t time.Time) int {
	total := 0
	for _, r := range records {
		if r.CreatorID == creatorID && r.ActiveAt(t) {
			total += r.ShareBps
		}
	}
	return total
}
