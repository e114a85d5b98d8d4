package gormrepository

import (
	"context"

	"gorm.io/gorm"

	"alphapulse/internal/models"
)

const sentinelID = -1

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListTournaments(ctx context.Context) ([]models.Tournament, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Tournament
	err := s.db.WithContext(ctx).
		Select("id", "name", "contract", "data").
		Where("id <> ?", sentinelID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
