package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeUserHandles = "2026-09-14_normalize_user_handles"
	migrationEnsureGlobalOwner    = "2026-09-21_ensure_global_owner"
)

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
		{name: migrationNormalizeUserHandles, apply: normalizeUserHandles},
		{name: migrationEnsureGlobalOwner, apply: ensureGlobalOwner},
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

// normalizeUserHandles lowercases and trims handles written before handle
// validation existed, so "@handle" matching in message bodies finds them.
func normalizeUserHandles(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("handle <> lower(trim(handle))").
		Update("handle", gorm.Expr("lower(trim(handle))")).Error
}

// ensureGlobalOwner promotes the oldest user when no global owner exists.
func ensureGlobalOwner(db *gorm.DB) error {
	var owners int64
	if err := db.Model(&users.User{}).Where("permission = ?", users.PermissionGlobalOwner).Count(&owners).Error; err != nil {
		return err
	}
	if owners > 0 {
		return nil
	}
	var oldest users.User
	err := db.Order("id ASC").Take(&oldest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return db.Model(&users.User{}).
		Where("id = ?", oldest.ID).
		Update("permission", users.PermissionGlobalOwner).Error
}
