package blends

import "time"

// Blend is one stored compatibility result for an unordered user pair. Rows
// are append-only: recomputations insert new rows and reads take the newest.
// The pair is always persisted with user1_id < user2_id so lookups are
// order-independent.
type Blend struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	User1ID   string    `gorm:"column:user1_id;size:190;not null;index:idx_blends_pair_created,priority:1"`
	User2ID   string    `gorm:"column:user2_id;size:190;not null;index:idx_blends_pair_created,priority:2"`
	BlendData string    `gorm:"column:blend_data;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_blends_pair_created,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (Blend) TableName() string {
	return "blends"
}

// OrderPair normalizes a user id pair into its canonical storage order.
func OrderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
