package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Profile is a user record of the identity store.
type Profile struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	Username   string    `bun:",pk"                              json:"username"`
	ProfileURL string    `bun:",notnull"                         json:"profileUrl"`
	UpdatedAt  time.Time `bun:",notnull,default:current_timestamp" json:"updatedAt"`
}
