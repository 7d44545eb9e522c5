package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/bookblendapp/backend/internal/identity"
	"github.com/bookblendapp/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillUserSlugs = "2026-07-14_backfill_user_slugs"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillUserSlugs, apply: backfillUserSlugs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillUserSlugs assigns slugs to user rows cached before slug support
// existed. Allocation mirrors the live allocator: name-derived base,
// canonical id fallback, linear suffix probing against claimed slugs.
func backfillUserSlugs(db *gorm.DB) error {
	var rows []users.User
	if err := db.Where("slug IS NULL OR slug = ''").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		base := identity.Slugify(row.Name)
		if base == "" {
			base = identity.Slugify(row.ID)
		}
		if base == "" {
			base = row.ID
		}
		slug := base
		for attempt := 1; ; attempt++ {
			var count int64
			if err := db.Model(&users.User{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				break
			}
			slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		if err := db.Model(&users.User{}).Where("id = ?", row.ID).Update("slug", slug).Error; err != nil {
			return err
		}
	}
	return nil
}
