package share

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bookblendapp/backend/internal/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("share: database connection required")
	errMissingUsers    = errors.New("share: user service required")

	// ErrMissingUserID indicates a share operation without a user id.
	ErrMissingUserID = errors.New("share: user id is required")
)

// ServiceConfig describes the dependencies of the share service.
type ServiceConfig struct {
	Database *gorm.DB
	Users    *users.Service
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages share-link rows and resolves public slugs to users.
type Service struct {
	db     *gorm.DB
	users  *users.Service
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the share service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Users == nil {
		return nil, errMissingUsers
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		users:  cfg.Users,
		now:    clock,
		logger: logger,
	}, nil
}

// Create upserts the share-link row for a user. Creating a link for the same
// user twice returns the original row.
func (s *Service) Create(ctx context.Context, userID string) (Link, error) {
	if strings.TrimSpace(userID) == "" {
		return Link{}, ErrMissingUserID
	}
	link := Link{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&link).Error
	if err != nil {
		return Link{}, err
	}
	// Re-read so a pre-existing row comes back with its original id and
	// created_at instead of the values we just tried to insert.
	var stored Link
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&stored).Error; err != nil {
		return Link{}, err
	}
	return stored, nil
}

// ByUserID fetches the share link for a user, nil when none exists. Store
// errors degrade to a miss.
func (s *Service) ByUserID(ctx context.Context, userID string) (*Link, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	var link Link
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("share link read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, nil
	}
	return &link, nil
}

// Resolve maps a public slug back to its user record for share pages, nil
// when the slug is unknown.
func (s *Service) Resolve(ctx context.Context, slug string) (*users.User, error) {
	return s.users.UserBySlug(ctx, slug)
}
