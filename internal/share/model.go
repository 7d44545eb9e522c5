package share

import "time"

// Link is the legacy share-link record: one row per user, upserted on
// creation so repeated share requests stay stable. The modern share key is
// the user's slug; both forms are served.
type Link struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_share_links_user"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Link) TableName() string {
	return "share_links"
}
