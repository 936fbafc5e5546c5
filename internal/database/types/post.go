package types

import (
	"maps"

	"github.com/robalyx/timeline/internal/timeline"
	"github.com/uptrace/bun"
)

// Post is a comment row of the content store. Fields beyond the indexed
// ones are kept in Extra and returned untouched.
type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	CID       string         `bun:"cid,pk"                     json:"cid"`
	UID       string         `bun:"uid,notnull"                json:"uid"`
	Ups       int64          `bun:"ups,notnull,default:0"      json:"ups"`
	Timestamp int64          `bun:"timestamp,notnull"          json:"timestamp"`
	ParentID  string         `bun:"parent_id,nullzero"         json:"parent_id,omitempty"`
	Extra     map[string]any `bun:"extra,type:jsonb,nullzero"  json:"extra,omitempty"`
}

// ContentItem converts the row into a timeline comment.
func (p *Post) ContentItem() timeline.ContentItem {
	item := timeline.ContentItem{
		ID:        p.CID,
		AuthorID:  timeline.UserID(p.UID),
		Ups:       p.Ups,
		Timestamp: p.Timestamp,
		ParentID:  p.ParentID,
	}
	if len(p.Extra) > 0 {
		item.Extra = maps.Clone(p.Extra)
	}
	return item
}

// NewPost converts a timeline comment into a row.
func NewPost(item timeline.ContentItem) *Post {
	post := &Post{
		CID:       item.ID,
		UID:       string(item.AuthorID),
		Ups:       item.Ups,
		Timestamp: item.Timestamp,
		ParentID:  item.ParentID,
	}
	if len(item.Extra) > 0 {
		post.Extra = maps.Clone(item.Extra)
	}
	return post
}
