package blends

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("blends: database connection required")
	errMissingIDProvider = errors.New("blends: id provider required")

	// ErrMissingPair indicates a save or lookup with an empty user id.
	ErrMissingPair = errors.New("blends: both user ids are required")
)

// IDProvider issues identifiers for newly stored blends.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the blend store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists compatibility results as an append-only history per pair.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	ids    IDProvider
	logger *zap.Logger
}

// NewService constructs the blend store service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
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
		now:    clock,
		ids:    cfg.IDProvider,
		logger: logger,
	}, nil
}

// SaveBlend inserts a new result row for the pair. Existing rows are never
// updated in place; history is preserved and LatestBlend picks the newest.
func (s *Service) SaveBlend(ctx context.Context, userID1, userID2 string, payload json.RawMessage) (Blend, error) {
	if userID1 == "" || userID2 == "" {
		return Blend{}, ErrMissingPair
	}
	id, err := s.ids.NewID()
	if err != nil {
		return Blend{}, err
	}
	first, second := OrderPair(userID1, userID2)
	blend := Blend{
		ID:        id,
		User1ID:   first,
		User2ID:   second,
		BlendData: string(payload),
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&blend).Error; err != nil {
		return Blend{}, err
	}
	return blend, nil
}

// LatestBlend returns the most recent result for the pair, in either argument
// order, or nil when the pair has never been blended. Store errors degrade to
// a miss.
func (s *Service) LatestBlend(ctx context.Context, userID1, userID2 string) (*Blend, error) {
	if userID1 == "" || userID2 == "" {
		return nil, ErrMissingPair
	}
	first, second := OrderPair(userID1, userID2)
	var blend Blend
	err := s.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", first, second).
		Order("created_at DESC").
		First(&blend).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("blend cache read failed",
			zap.String("user1_id", first),
			zap.String("user2_id", second),
			zap.Error(err))
		return nil, nil
	}
	return &blend, nil
}

// BlendByID fetches one stored result by its row id, nil when absent.
func (s *Service) BlendByID(ctx context.Context, id string) (*Blend, error) {
	var blend Blend
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&blend).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("blend read failed", zap.String("blend_id", id), zap.Error(err))
		return nil, nil
	}
	return &blend, nil
}

// Payload exposes the stored upstream result as raw JSON.
func (b Blend) Payload() json.RawMessage {
	return json.RawMessage(b.BlendData)
}
