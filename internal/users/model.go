package users

import "time"

// User is a cached Goodreads profile. The id column holds the serialized
// canonical identifier: bare digits for numeric ids, "username:<handle>"
// otherwise.
type User struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name       string    `gorm:"column:name;size:320;not null"`
	ImageURL   *string   `gorm:"column:image_url;size:512"`
	ProfileURL *string   `gorm:"column:profile_url;size:512"`
	BookCount  *int      `gorm:"column:book_count"`
	Username   *string   `gorm:"column:username;size:190"`
	Slug       *string   `gorm:"column:slug;size:190;uniqueIndex:idx_users_slug"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// SlugValue returns the assigned slug or "" when none has been allocated.
func (u User) SlugValue() string {
	if u.Slug == nil {
		return ""
	}
	return *u.Slug
}

// Profile is the subset of an upstream lookup that the cache persists.
type Profile struct {
	ID         string
	Name       string
	ImageURL   *string
	ProfileURL *string
	BookCount  *int
	Username   *string
}
