package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/sarwatch/backend/internal/aoi"
	"gorm.io/gorm"
)

// Store is the persistence the loop needs. Kept narrow so tests can run
// against a fake.
type Store interface {
	ActiveAOIs(ctx context.Context) ([]aoi.AOI, error)
	LatestAnalysis(ctx context.Context, aoiID string) (*aoi.Analysis, error)
	// SaveResult writes the analysis and advances LastChecked in one
	// transaction; a failure rolls back both.
	SaveResult(ctx context.Context, a *aoi.AOI, rec *aoi.Analysis) error
	TouchLastChecked(ctx context.Context, aoiID string, at time.Time) error
}

// GormStore is the production Store backed by the shared database.
type GormStore struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) ActiveAOIs(ctx context.Context) ([]aoi.AOI, error) {
	var aois []aoi.AOI
	err := s.DB.WithContext(ctx).Where("active = ?", true).Find(&aois).Error
	return aois, err
}

func (s *GormStore) LatestAnalysis(ctx context.Context, aoiID string) (*aoi.Analysis, error) {
	var rec aoi.Analysis
	err := s.DB.WithContext(ctx).
		Where("aoi_id = ?", aoiID).
		Order("new_image_date DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) SaveResult(ctx context.Context, a *aoi.AOI, rec *aoi.Analysis) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		return tx.Model(&aoi.AOI{}).
			Where("id = ?", a.ID).
			Update("last_checked", rec.AnalyzedAt).Error
	})
}

func (s *GormStore) TouchLastChecked(ctx context.Context, aoiID string, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&aoi.AOI{}).
		Where("id = ?", aoiID).
		Update("last_checked", at).Error
}
