package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"go-onboard/internal/domain"
)

// progressArchive is a retired progress record, kept as one JSONB snapshot.
type progressArchive struct {
	ID         uuid.UUID                                 `gorm:"type:uuid;primary_key;"`
	OwnerID    string                                    `gorm:"type:varchar(128);index;not null"`
	Reason     string                                    `gorm:"type:varchar(20);not null"`
	Snapshot   datatypes.JSONType[domain.ProgressRecord] `gorm:"type:jsonb"`
	ArchivedAt time.Time                                 `gorm:"index"`
}

func (progressArchive) TableName() string { return "onboarding_progress_archives" }

func newArchive(prev domain.ProgressRecord, reason string, at time.Time) *progressArchive {
	return &progressArchive{
		ID:         uuid.New(),
		OwnerID:    prev.OwnerID,
		Reason:     reason,
		Snapshot:   datatypes.NewJSONType(prev),
		ArchivedAt: at,
	}
}

func (a progressArchive) toDomain() domain.ArchivedProgress {
	return domain.ArchivedProgress{
		Record:     a.Snapshot.Data(),
		Reason:     a.Reason,
		ArchivedAt: a.ArchivedAt,
	}
}
