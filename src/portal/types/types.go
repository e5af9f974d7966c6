package types

import (
	"strings"
	"time"
)

// Students
type Student struct {
	ID           uint32 `gorm:"primaryKey"`
	Slug         string `gorm:"size:64;uniqueIndex;not null"`
	Name         string `gorm:"size:128"`
	Role         string `gorm:"size:64;index"`
	PasswordHash string `gorm:"size:128;not null"`
	Admin        bool   `gorm:"default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Missions. Roles is a comma-separated list; empty or "*" means the mission
// is visible to every role. Contract holds the verification contract JSON,
// validated on the admin write path.
type Mission struct {
	ID              uint32 `gorm:"primaryKey"`
	Title           string `gorm:"size:255;not null"`
	DescriptionHTML string `gorm:"type:text"`
	Position        uint32 `gorm:"index;not null"`
	Roles           string `gorm:"size:255"`
	Contract        string `gorm:"type:text;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RoleList returns the mission's declared roles, trimmed, lower-cased.
func (m Mission) RoleList() []string {
	if strings.TrimSpace(m.Roles) == "" {
		return nil
	}
	parts := strings.Split(m.Roles, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AppliesTo reports whether the mission is visible to the given role.
func (m Mission) AppliesTo(role string) bool {
	roles := m.RoleList()
	if len(roles) == 0 {
		return true
	}
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range roles {
		if r == "*" || r == role {
			return true
		}
	}
	return false
}

// Completions are append-only: a row is written once by a successful
// verification and never revoked, even if the contract changes later.
type Completion struct {
	ID        uint64 `gorm:"primaryKey"`
	Slug      string `gorm:"size:64;uniqueIndex:idx_slug_mission;not null"`
	MissionID uint32 `gorm:"uniqueIndex:idx_slug_mission;not null"`
	CreatedAt time.Time
}
