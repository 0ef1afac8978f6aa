package models

import (
	"time"
)

// Race is owned by the surrounding raid/club CRUD; the results core only
// reads it (existence check, competitive flag, age categories).
type Race struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	RaidID        uint      `json:"raid_id" gorm:"not null;index"`
	Name          string    `json:"name" gorm:"not null"`
	Date          time.Time `json:"date"`
	IsCompetitive bool      `json:"is_competitive" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	AgeCategories []AgeCategory `json:"age_categories,omitempty" gorm:"foreignKey:RaceID"`
}

// AgeCategory is a named age bracket used to group competitive results.
type AgeCategory struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	RaceID uint   `json:"race_id" gorm:"not null;index"`
	Name   string `json:"name" gorm:"not null"`
	MinAge int    `json:"min_age"`
	MaxAge int    `json:"max_age"`
}

// Contains reports whether an age falls inside the bracket.
func (c *AgeCategory) Contains(age int) bool {
	return age >= c.MinAge && age <= c.MaxAge
}
