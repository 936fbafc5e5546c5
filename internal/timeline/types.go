// Package timeline assembles per-user timelines from the profile, graph and content stores.
package timeline

import (
	"errors"
	"maps"

	"github.com/bytedance/sonic"
)

// ProfileSentinel is returned in place of a profile image URL that could not be resolved.
const ProfileSentinel = "#"

// DefaultCommentLimit is the number of followee comments placed on a timeline.
const DefaultCommentLimit = 30

// ErrCancelled is returned when the caller abandoned the request before assembly finished.
var ErrCancelled = errors.New("timeline assembly cancelled")

// Wire field names of a content item. Passthrough fields using one of these
// names are shadowed by the typed value.
const (
	FieldID          = "cid"
	FieldAuthorID    = "uid"
	FieldUps         = "ups"
	FieldTimestamp   = "timestamp"
	FieldParentID    = "parent_id"
	FieldParent      = "parent"
	FieldGrandParent = "grand_parent"
)

// encoding sorts map keys so that equal payloads always serialize to equal bytes.
var encoding = sonic.ConfigStd

// decoding keeps passthrough numbers as json.Number to preserve them verbatim.
var decoding = sonic.Config{UseNumber: true}.Froze()

// UserID identifies a user across all three stores and the result cache.
type UserID string

// FollowerEntry is a follower of the timeline owner.
type FollowerEntry struct {
	Name    UserID `json:"name"`
	Profile string `json:"profile"`
}

// ContentItem is a single comment from the content store.
// Extra holds every field the store returned beyond the typed ones.
type ContentItem struct {
	ID        string
	AuthorID  UserID
	Ups       int64
	Timestamp int64
	ParentID  string
	Extra     map[string]any
}

// fields flattens the item into its wire representation.
func (c ContentItem) fields() map[string]any {
	out := make(map[string]any, len(c.Extra)+5)
	maps.Copy(out, c.Extra)
	out[FieldID] = c.ID
	out[FieldAuthorID] = string(c.AuthorID)
	out[FieldUps] = c.Ups
	out[FieldTimestamp] = c.Timestamp
	out[FieldParentID] = c.ParentID
	return out
}

// MarshalJSON implements json.Marshaler.
func (c ContentItem) MarshalJSON() ([]byte, error) {
	return encoding.Marshal(c.fields())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ContentItem) UnmarshalJSON(data []byte) error {
	var core struct {
		ID        string `json:"cid"`
		AuthorID  UserID `json:"uid"`
		Ups       int64  `json:"ups"`
		Timestamp int64  `json:"timestamp"`
		ParentID  string `json:"parent_id"`
	}
	if err := decoding.Unmarshal(data, &core); err != nil {
		return err
	}

	var all map[string]any
	if err := decoding.Unmarshal(data, &all); err != nil {
		return err
	}

	for _, key := range []string{FieldID, FieldAuthorID, FieldUps, FieldTimestamp, FieldParentID, FieldParent, FieldGrandParent} {
		delete(all, key)
	}

	*c = ContentItem{
		ID:        core.ID,
		AuthorID:  core.AuthorID,
		Ups:       core.Ups,
		Timestamp: core.Timestamp,
		ParentID:  core.ParentID,
	}
	if len(all) > 0 {
		c.Extra = all
	}

	return nil
}

// EnrichedAncestor is the parent of a timeline comment, optionally carrying its own parent.
type EnrichedAncestor struct {
	ContentItem
	GrandParent *ContentItem
}

func (a EnrichedAncestor) fields() map[string]any {
	out := a.ContentItem.fields()
	if a.GrandParent != nil {
		out[FieldGrandParent] = a.GrandParent.fields()
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (a EnrichedAncestor) MarshalJSON() ([]byte, error) {
	return encoding.Marshal(a.fields())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *EnrichedAncestor) UnmarshalJSON(data []byte) error {
	var item ContentItem
	if err := item.UnmarshalJSON(data); err != nil {
		return err
	}

	var nested struct {
		GrandParent *ContentItem `json:"grand_parent"`
	}
	if err := decoding.Unmarshal(data, &nested); err != nil {
		return err
	}

	*a = EnrichedAncestor{ContentItem: item, GrandParent: nested.GrandParent}
	return nil
}

// EnrichedContentItem is a timeline comment with up to two resolved ancestors.
type EnrichedContentItem struct {
	ContentItem
	Parent *EnrichedAncestor
}

func (e EnrichedContentItem) fields() map[string]any {
	out := e.ContentItem.fields()
	if e.Parent != nil {
		out[FieldParent] = e.Parent.fields()
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (e EnrichedContentItem) MarshalJSON() ([]byte, error) {
	return encoding.Marshal(e.fields())
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *EnrichedContentItem) UnmarshalJSON(data []byte) error {
	var item ContentItem
	if err := item.UnmarshalJSON(data); err != nil {
		return err
	}

	var nested struct {
		Parent *EnrichedAncestor `json:"parent"`
	}
	if err := decoding.Unmarshal(data, &nested); err != nil {
		return err
	}

	*e = EnrichedContentItem{ContentItem: item, Parent: nested.Parent}
	return nil
}

// TimelinePayload is the assembled timeline of a single user.
// It is never modified after assembly; its encoded form is what the cache stores.
type TimelinePayload struct {
	Name      UserID                `json:"name"`
	Profile   string                `json:"profile"`
	Followers []FollowerEntry       `json:"followers"`
	Comments  []EnrichedContentItem `json:"comments"`
}

// Encode serializes the payload. Empty sections encode as empty arrays.
func (p *TimelinePayload) Encode() ([]byte, error) {
	out := *p
	if out.Followers == nil {
		out.Followers = []FollowerEntry{}
	}
	if out.Comments == nil {
		out.Comments = []EnrichedContentItem{}
	}
	return encoding.Marshal(&out)
}
