package data

import (
	"github.com/portalkids/portal-api/src/portal/types"
	"gorm.io/gorm"
)

type CompletionStore struct {
	db *gorm.DB
}

func NewCompletionStore(db *gorm.DB) *CompletionStore {
	return &CompletionStore{db: db}
}

// Record inserts the (slug, mission) completion if absent. Concurrent
// verifications of the same pair race on the unique index, not on a lock;
// re-asserting an existing completion is a no-op.
func (s *CompletionStore) Record(slug string, missionID uint32) error {
	completion := types.Completion{Slug: NormalizeSlug(slug), MissionID: missionID}
	return s.db.Where(&completion).FirstOrCreate(&completion).Error
}

// Set returns the mission IDs the student has completed.
func (s *CompletionStore) Set(slug string) (map[uint32]struct{}, error) {
	var rows []types.Completion
	if err := s.db.Find(&rows, "slug = ?", NormalizeSlug(slug)).Error; err != nil {
		return nil, err
	}
	out := make(map[uint32]struct{}, len(rows))
	for _, row := range rows {
		out[row.MissionID] = struct{}{}
	}
	return out, nil
}
