package data

import (
	"errors"
	"strings"

	"github.com/portalkids/portal-api/src/portal/types"
	"gorm.io/gorm"
)

type StudentStore struct {
	db *gorm.DB
}

func NewStudentStore(db *gorm.DB) *StudentStore {
	return &StudentStore{db: db}
}

func (s *StudentStore) Get(slug string) (*types.Student, error) {
	slug = NormalizeSlug(slug)
	var student types.Student
	if err := s.db.First(&student, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &student, nil
}

func (s *StudentStore) List() ([]types.Student, error) {
	var students []types.Student
	if err := s.db.Order("slug").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

func (s *StudentStore) Create(student *types.Student) error {
	student.Slug = NormalizeSlug(student.Slug)
	return s.db.Create(student).Error
}

func (s *StudentStore) Update(student *types.Student) error {
	student.Slug = NormalizeSlug(student.Slug)
	return s.db.Save(student).Error
}

func (s *StudentStore) Delete(slug string) error {
	return s.db.Delete(&types.Student{}, "slug = ?", NormalizeSlug(slug)).Error
}

// NormalizeSlug canonicalizes slugs the way the login form does, so lookups
// never miss on case or stray whitespace.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
