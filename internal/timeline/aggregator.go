package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/robalyx/timeline/internal/timeline"

// AggregatorConfig tunes timeline assembly.
type AggregatorConfig struct {
	// CommentLimit is the number of followee comments to include.
	CommentLimit int
	// MaxInFlight bounds concurrent ancestor lookups per timeline.
	MaxInFlight int
	// AncestryTimeout bounds the ancestor lookups of a single comment.
	AncestryTimeout time.Duration
}

// Aggregator assembles a timeline from the profile, graph and content stores.
type Aggregator struct {
	profiles ProfileLookup
	graph    GraphLookup
	content  ContentLookup
	ancestry *AncestryResolver
	limit    int
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewAggregator creates an Aggregator over the given lookups.
func NewAggregator(
	profiles ProfileLookup, graph GraphLookup, content ContentLookup, cfg AggregatorConfig, logger *zap.Logger,
) *Aggregator {
	limit := cfg.CommentLimit
	if limit <= 0 {
		limit = DefaultCommentLimit
	}

	return &Aggregator{
		profiles: profiles,
		graph:    graph,
		content:  content,
		ancestry: NewAncestryResolver(content, cfg.MaxInFlight, cfg.AncestryTimeout, logger),
		limit:    limit,
		logger:   logger.Named("aggregator"),
		tracer:   otel.Tracer(tracerName),
	}
}

// Assemble builds the timeline of user. Missing or unavailable data degrades the
// affected section to empty (or the profile to ProfileSentinel); the only error
// returned is ErrCancelled when ctx ends before assembly completes.
func (a *Aggregator) Assemble(ctx context.Context, user UserID) (*TimelinePayload, error) {
	ctx, span := a.tracer.Start(ctx, "timeline.Assemble",
		trace.WithAttributes(attribute.String("user.id", string(user))))
	defer span.End()

	var (
		followers Result[[]FollowerEntry]
		comments  Result[[]EnrichedContentItem]
		profile   Result[string]
	)

	// The three sections have no data dependency on each other
	p := pool.New().WithContext(ctx)

	p.Go(func(ctx context.Context) error {
		followers = a.fetchFollowers(ctx, user)
		return nil
	})

	p.Go(func(ctx context.Context) error {
		comments = a.fetchComments(ctx, user)
		return nil
	})

	p.Go(func(ctx context.Context) error {
		profile = a.fetchProfile(ctx, user)
		return nil
	})

	_ = p.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	payload := &TimelinePayload{
		Name:      user,
		Profile:   ProfileSentinel,
		Followers: []FollowerEntry{},
		Comments:  []EnrichedContentItem{},
	}
	if followers.Status == StatusOK {
		payload.Followers = followers.Value
	}
	if comments.Status == StatusOK {
		payload.Comments = comments.Value
	}
	if profile.Status == StatusOK && profile.Value != "" {
		payload.Profile = profile.Value
	}

	span.SetAttributes(
		attribute.Int("timeline.followers", len(payload.Followers)),
		attribute.Int("timeline.comments", len(payload.Comments)),
		attribute.String("timeline.followers.status", followers.Status.String()),
		attribute.String("timeline.comments.status", comments.Status.String()),
		attribute.String("timeline.profile.status", profile.Status.String()),
	)

	a.logger.Debug("Assembled timeline",
		zap.String("userID", string(user)),
		zap.Int("followers", len(payload.Followers)),
		zap.Int("comments", len(payload.Comments)),
		zap.Stringer("profileStatus", profile.Status))

	return payload, nil
}

// fetchFollowers returns the followers section.
func (a *Aggregator) fetchFollowers(ctx context.Context, user UserID) Result[[]FollowerEntry] {
	followers, err := a.graph.GetFollowers(ctx, user)
	res := CollectSlice(followers, err)
	a.report(res.Status, res.Err, "followers", user)
	return res
}

// fetchComments returns the followees' top comments with their ancestors attached.
func (a *Aggregator) fetchComments(ctx context.Context, user UserID) Result[[]EnrichedContentItem] {
	ids, err := a.graph.GetFollowees(ctx, user)
	followees := CollectSlice(ids, err)
	a.report(followees.Status, followees.Err, "followees", user)

	if followees.Status != StatusOK {
		return Result[[]EnrichedContentItem]{Status: followees.Status, Err: followees.Err}
	}

	// A user following only blank ids has nobody to read from
	authors := UniqueUserIDs(followees.Value)
	if len(authors) == 0 {
		return Empty[[]EnrichedContentItem]()
	}

	candidates, err := a.content.GetTopByAuthors(ctx, authors, a.limit)
	top := CollectSlice(candidates, err)
	a.report(top.Status, top.Err, "comments", user)

	if top.Status != StatusOK {
		return Result[[]EnrichedContentItem]{Status: top.Status, Err: top.Err}
	}

	items := top.Value
	if len(items) > a.limit {
		items = items[:a.limit]
	}

	return OK(a.ancestry.ResolveAll(ctx, items))
}

// fetchProfile returns the profile image URL section.
func (a *Aggregator) fetchProfile(ctx context.Context, user UserID) Result[string] {
	url, found, err := a.profiles.GetProfile(ctx, user)
	res := Collect(url, found, err)
	a.report(res.Status, res.Err, "profile", user)
	return res
}

// report logs a degraded section. Cancellations are not upstream failures.
func (a *Aggregator) report(status Status, err error, section string, user UserID) {
	if status != StatusFailed {
		return
	}

	if isCancellation(err) {
		a.logger.Debug("Section lookup cancelled",
			zap.String("section", section),
			zap.String("userID", string(user)),
			zap.Error(err))
		return
	}

	a.logger.Warn("Upstream unavailable, degrading section",
		zap.String("section", section),
		zap.String("userID", string(user)),
		zap.Error(err))
}
