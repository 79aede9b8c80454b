package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxLineageDepth caps parent traversal. Deeper chains are treated as anomalies.
const MaxLineageDepth = 20

// DefaultDescendantLimit bounds indirect descendant walks when the caller gives no limit.
const DefaultDescendantLimit = 1000

// ParentLookup resolves an asset's parent. A root returns nil. Unknown assets return
// an error wrapping ErrAssetNotFound.
type ParentLookup interface {
	ParentOf(ctx context.Context, assetID uuid.UUID) (*uuid.UUID, error)
}

type ChildLookup interface {
	ChildrenOf(ctx context.Context, assetID uuid.UUID) ([]uuid.UUID, error)
}

// Lineage is the ancestor chain of an asset, root first, excluding the asset itself.
type Lineage struct {
	AssetID       uuid.UUID   `json:"asset_id"`
	Ancestors     []uuid.UUID `json:"ancestors"`
	Truncated     bool        `json:"truncated"`
	CycleDetected bool        `json:"cycle_detected"`
}

func (l Lineage) Depth() int {
	return len(l.Ancestors)
}

// Anomalous reports whether the walk stopped on the hop cap or a revisited id.
func (l Lineage) Anomalous() bool {
	return l.Truncated || l.CycleDetected
}

// Strings renders the chain for storage on derivative metadata.
func (l Lineage) Strings() []string {
	out := make([]string, len(l.Ancestors))
	for i, id := range l.Ancestors {
		out[i] = id.String()
	}
	return out
}

type LineageTracker struct {
	parents  ParentLookup
	children ChildLookup
	log      logrus.FieldLogger
	maxDepth int
}

func NewLineageTracker(parents ParentLookup, children ChildLookup, log logrus.FieldLogger) *LineageTracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LineageTracker{
		parents:  parents,
		children: children,
		log:      log,
		maxDepth: MaxLineageDepth,
	}
}

// BuildLineage walks parent pointers upward. It always terminates: the walk stops at a
// root, after MaxLineageDepth hops, or on the first revisited id. The last two are logged.
func (t *LineageTracker) BuildLineage(ctx context.Context, assetID uuid.UUID) (Lineage, error) {
	lineage := Lineage{AssetID: assetID}
	visited := map[uuid.UUID]bool{assetID: true}
	var upward []uuid.UUID

	current := assetID
	for {
		parent, err := t.parents.ParentOf(ctx, current)
		if err != nil {
			return Lineage{}, fmt.Errorf("failed to resolve parent of %s: %w", current, err)
		}
		if parent == nil {
			break
		}
		if visited[*parent] {
			lineage.CycleDetected = true
			t.log.WithFields(logrus.Fields{
				"asset_id":  assetID,
				"repeated":  *parent,
				"hops":      len(upward),
				"component": "lineage",
			}).Warn("Lineage walk revisited an asset, parent pointers form a cycle")
			break
		}
		if len(upward) >= t.maxDepth {
			lineage.Truncated = true
			t.log.WithFields(logrus.Fields{
				"asset_id":  assetID,
				"max_depth": t.maxDepth,
				"component": "lineage",
			}).Warn("Lineage walk hit the depth cap")
			break
		}
		visited[*parent] = true
		upward = append(upward, *parent)
		current = *parent
	}

	lineage.Ancestors = make([]uuid.UUID, len(upward))
	for i, id := range upward {
		lineage.Ancestors[len(upward)-1-i] = id
	}
	return lineage, nil
}

// GetDescendants returns direct children, or with includeIndirect a breadth-first walk of
// the whole subtree. A visited set guards against cycles in bad data; limit caps the result.
func (t *LineageTracker) GetDescendants(ctx context.Context, assetID uuid.UUID, includeIndirect bool, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = DefaultDescendantLimit
	}

	if !includeIndirect {
		children, err := t.children.ChildrenOf(ctx, assetID)
		if err != nil {
			return nil, fmt.Errorf("failed to list children of %s: %w", assetID, err)
		}
		if len(children) > limit {
			children = children[:limit]
		}
		return children, nil
	}

	visited := map[uuid.UUID]bool{assetID: true}
	queue := []uuid.UUID{assetID}
	var out []uuid.UUID
	for len(queue) > 0 && len(out) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		children, err := t.children.ChildrenOf(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("failed to list children of %s: %w", current, err)
		}
		for _, child := range children {
			if visited[child] {
				t.log.WithFields(logrus.Fields{
					"asset_id":  assetID,
					"repeated":  child,
					"component": "lineage",
				}).Warn("Descendant walk revisited an asset")
				continue
			}
			visited[child] = true
			out = append(out, child)
			if len(out) >= limit {
				break
			}
			queue = append(queue, child)
		}
	}
	return out, nil
}

// ChainFor returns the lineage a new child of parentID would carry: the parent's own
// ancestors followed by the parent. Anomalous or over-deep chains are rejected.
func (t *LineageTracker) ChainFor(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	parentLineage, err := t.BuildLineage(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parentLineage.Anomalous() {
		return nil, &ConflictError{Reason: fmt.Sprintf("lineage of asset %s is truncated or cyclic", parentID)}
	}
	chain := append(parentLineage.Ancestors, parentID)
	if len(chain) > MaxLineageDepth {
		return nil, NewValidationError("parent_asset_id", "derivation depth would exceed %d", MaxLineageDepth)
	}
	return chain, nil
}
