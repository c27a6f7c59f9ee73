package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-onboard/internal/core/ports"
	"go-onboard/internal/domain"
)

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a postgres backed ProgressStore
func NewProgressRepository(db *gorm.DB) ports.ProgressStore {
	return &progressRepository{db: db}
}

// Migrate creates or updates the progress and archive tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&domain.ProgressRecord{}, &progressArchive{})
}

func (r *progressRepository) Load(ctx context.Context, ownerID string) (*domain.ProgressRecord, error) {
	var rec domain.ProgressRecord
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.CodeNotFound, "", "no progress for owner "+ownerID)
		}
		return nil, err
	}
	return &rec, nil
}

// Save upserts the whole row in one statement. The update only applies
// when the incoming version is newer than the stored one.
func (r *progressRepository) Save(ctx context.Context, record *domain.ProgressRecord) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			UpdateAll: true,
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("onboarding_progress.version < EXCLUDED.version"),
			}},
		}).
		Create(record)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return r.conflict(ctx, record)
	}

	return nil
}

func (r *progressRepository) conflict(ctx context.Context, record *domain.ProgressRecord) error {
	var stored int
	err := r.db.WithContext(ctx).
		Model(&domain.ProgressRecord{}).
		Where("owner_id = ?", record.OwnerID).
		Select("version").
		Scan(&stored).Error
	if err != nil {
		return err
	}
	return domain.VersionConflict(record.OwnerID, stored, record.Version)
}

// Reset archives the current row and writes fresh inside one transaction.
// The row lock keeps a concurrent Save from slipping between the two.
func (r *progressRepository) Reset(ctx context.Context, fresh *domain.ProgressRecord, reason string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev domain.ProgressRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner_id = ?", fresh.OwnerID).
			First(&prev).Error
		switch {
		case err == nil:
			if prev.Version >= fresh.Version {
				return domain.VersionConflict(fresh.OwnerID, prev.Version, fresh.Version)
			}
			if err := tx.Create(newArchive(prev, reason, time.Now().UTC())).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			UpdateAll: true,
		}).Create(fresh).Error
	})
}

func (r *progressRepository) History(ctx context.Context, ownerID string) ([]domain.ArchivedProgress, error) {
	var rows []progressArchive
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("archived_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.ArchivedProgress, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
