package data

import (
	"errors"

	"github.com/portalkids/portal-api/src/portal/types"
	"gorm.io/gorm"
)

type MissionStore struct {
	db *gorm.DB
}

func NewMissionStore(db *gorm.DB) *MissionStore {
	return &MissionStore{db: db}
}

func (s *MissionStore) Get(id uint32) (*types.Mission, error) {
	var mission types.Mission
	if err := s.db.First(&mission, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mission, nil
}

// List returns every mission in declared order.
func (s *MissionStore) List() ([]types.Mission, error) {
	var missions []types.Mission
	if err := s.db.Order("position, id").Find(&missions).Error; err != nil {
		return nil, err
	}
	return missions, nil
}

func (s *MissionStore) Create(mission *types.Mission) error {
	return s.db.Create(mission).Error
}

func (s *MissionStore) Update(mission *types.Mission) error {
	return s.db.Save(mission).Error
}

func (s *MissionStore) Delete(id uint32) error {
	return s.db.Delete(&types.Mission{}, "id = ?", id).Error
}
