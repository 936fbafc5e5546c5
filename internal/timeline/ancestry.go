package timeline

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// DefaultMaxInFlight caps concurrent ancestor lookups for a single timeline.
const DefaultMaxInFlight = 8

// AncestryResolver attaches the parent and grandparent of a comment.
// Enrichment is best-effort: a missing or failed ancestor leaves the item as it was.
type AncestryResolver struct {
	content     ContentLookup
	maxInFlight int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewAncestryResolver creates a resolver. maxInFlight bounds how many items are resolved
// at once and timeout bounds the ancestor lookups of a single item (0 disables it).
func NewAncestryResolver(content ContentLookup, maxInFlight int, timeout time.Duration, logger *zap.Logger) *AncestryResolver {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}

	return &AncestryResolver{
		content:     content,
		maxInFlight: maxInFlight,
		timeout:     timeout,
		logger:      logger.Named("ancestry"),
	}
}

// Resolve returns item with up to two ancestor levels attached.
func (r *AncestryResolver) Resolve(ctx context.Context, item ContentItem) EnrichedContentItem {
	enriched := EnrichedContentItem{ContentItem: item}
	if item.ParentID == "" {
		return enriched
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	parent, ok := r.lookup(ctx, item.ID, item.ParentID)
	if !ok {
		return enriched
	}

	ancestor := &EnrichedAncestor{ContentItem: parent}
	if parent.ParentID != "" {
		if grandParent, ok := r.lookup(ctx, item.ID, parent.ParentID); ok {
			ancestor.GrandParent = &grandParent
		}
	}
	enriched.Parent = ancestor

	return enriched
}

// ResolveAll resolves every item concurrently and returns them in their original order.
func (r *AncestryResolver) ResolveAll(ctx context.Context, items []ContentItem) []EnrichedContentItem {
	out := make([]EnrichedContentItem, len(items))
	p := pool.New().WithMaxGoroutines(r.maxInFlight)

	for i, item := range items {
		if item.ParentID == "" {
			out[i] = EnrichedContentItem{ContentItem: item}
			continue
		}

		p.Go(func() {
			out[i] = r.Resolve(ctx, item)
		})
	}

	p.Wait()
	return out
}

// lookup fetches one ancestor, reporting false when it is missing or the store failed.
func (r *AncestryResolver) lookup(ctx context.Context, itemID, ancestorID string) (ContentItem, bool) {
	ancestor, found, err := r.content.GetByID(ctx, ancestorID)
	res := Collect(ancestor, found, err)

	switch {
	case res.Cancelled():
		r.logger.Debug("Ancestor lookup cancelled",
			zap.String("contentID", itemID),
			zap.String("ancestorID", ancestorID),
			zap.Error(res.Err))
	case res.Status == StatusFailed:
		r.logger.Warn("Failed to fetch ancestor",
			zap.String("contentID", itemID),
			zap.String("ancestorID", ancestorID),
			zap.Error(res.Err))
	case res.Status == StatusEmpty:
		r.logger.Debug("Dangling ancestor reference",
			zap.String("contentID", itemID),
			zap.String("ancestorID", ancestorID))
	}

	return res.Value, res.Status == StatusOK
}
