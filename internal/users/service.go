package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookblendapp/backend/internal/identity"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultStaleAfter is the window after which a cached profile is
	// treated as a read miss. The row itself is kept so its slug survives.
	DefaultStaleAfter = 24 * time.Hour

	// maxSlugAttempts bounds the linear suffix scan before the allocator
	// falls back to a random fragment.
	maxSlugAttempts = 100
)

var (
	// ErrMissingProfileID indicates a cache write without a canonical id.
	ErrMissingProfileID = errors.New("users: profile id is required")

	errMissingDatabase = errors.New("users: database connection required")
)

// ServiceConfig describes the dependencies of the user cache.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Logger     *zap.Logger
	StaleAfter time.Duration
}

// Service caches upstream profiles and owns slug allocation.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	logger     *zap.Logger
	staleAfter time.Duration
}

// NewService constructs the user cache service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		logger:     logger,
		staleAfter: staleAfter,
	}, nil
}

// CacheUser upserts the fetched profile keyed by its canonical id. A slug
// assigned on a previous write is never regenerated, even when the display
// name has since changed; the first write allocates one from the name. The
// row's created_at survives subsequent writes, every other field is replaced.
func (s *Service) CacheUser(ctx context.Context, profile Profile) (User, error) {
	if strings.TrimSpace(profile.ID) == "" {
		return User{}, ErrMissingProfileID
	}

	slug := ""
	createdAt := time.Time{}
	var existing User
	err := s.db.WithContext(ctx).Where("id = ?", profile.ID).Take(&existing).Error
	switch {
	case err == nil:
		slug = existing.SlugValue()
		createdAt = existing.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		// first sighting of this profile
	default:
		s.logger.Warn("user cache lookup failed", zap.String("user_id", profile.ID), zap.Error(err))
	}

	if slug == "" {
		slug, err = s.allocateSlug(ctx, identity.Slugify(profile.Name), profile.ID)
		if err != nil {
			return User{}, err
		}
	}

	user, err := s.upsert(ctx, profile, slug, createdAt)
	if err != nil && isUniqueViolation(err) {
		// Lost a concurrent allocation race: the unique index on slug
		// rejected the write. Allocate once more and retry.
		retrySlug, allocErr := s.allocateSlug(ctx, identity.Slugify(profile.Name), profile.ID)
		if allocErr != nil {
			return User{}, allocErr
		}
		user, err = s.upsert(ctx, profile, retrySlug, createdAt)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) upsert(ctx context.Context, profile Profile, slug string, createdAt time.Time) (User, error) {
	now := s.now().UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	user := User{
		ID:         profile.ID,
		Name:       profile.Name,
		ImageURL:   profile.ImageURL,
		ProfileURL: profile.ProfileURL,
		BookCount:  profile.BookCount,
		Username:   profile.Username,
		Slug:       &slug,
		CreatedAt:  createdAt,
		UpdatedAt:  now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "image_url", "profile_url", "book_count", "username", "updated_at",
		}),
	}).Create(&user).Error
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CachedUser returns the cached profile for an id, or nil when no row exists
// or the row is older than the staleness window. Stale rows are reported as
// misses but never deleted. Store errors on this read path degrade to a miss.
func (s *Service) CachedUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("user cache read failed", zap.String("user_id", id), zap.Error(err))
		return nil, nil
	}
	if s.now().Sub(user.UpdatedAt) > s.staleAfter {
		return nil, nil
	}
	return &user, nil
}

// UserBySlug resolves a public slug to its user row. No staleness filter is
// applied: share links must keep resolving however old the cached profile is.
func (s *Service) UserBySlug(ctx context.Context, slug string) (*User, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, nil
	}
	var user User
	err := s.db.WithContext(ctx).Where("slug = ?", slug).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("slug lookup failed", zap.String("slug", slug), zap.Error(err))
		return nil, nil
	}
	return &user, nil
}

// allocateSlug finds an unclaimed slug starting from base, probing suffixed
// variants base-1, base-2, ... up to maxSlugAttempts. Names that slugify to
// nothing use the canonical id itself as the base. The check-then-act here is
// not atomic; the unique index on users.slug backstops the race and CacheUser
// retries on conflict.
func (s *Service) allocateSlug(ctx context.Context, base, fallback string) (string, error) {
	if base == "" {
		base = identity.Slugify(fallback)
	}
	if base == "" {
		base = fallback
	}

	candidate := base
	for attempt := 1; ; attempt++ {
		taken, err := s.slugTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		if attempt > maxSlugAttempts {
			break
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}

	fragment := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return base + "-" + fragment, nil
}

func (s *Service) slugTaken(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("slug = ?", slug).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
