package models

import (
	"time"
)

// IndividualResult is one timed row per (user, race). Temps and Malus are
// elapsed seconds; the ranked value is always Temps+Malus, never stored.
type IndividualResult struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"not null;uniqueIndex:idx_results_user_race"`
	RaceID uint `json:"race_id" gorm:"not null;uniqueIndex:idx_results_user_race;index"`

	Temps float64 `json:"temps" gorm:"not null;default:0"`
	Malus float64 `json:"malus" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TempsFinal is the ranked time: raw elapsed plus penalty.
func (r *IndividualResult) TempsFinal() float64 {
	return r.Temps + r.Malus
}

// TeamResult caches per-team aggregates for a race. Rows derived from
// individual results are recomputed after every contributing change and are
// safe to drop and rebuild at any time. Rows written by the team-direct CSV
// path carry Manual=true: there is no individual breakdown behind them, so
// recomputation must leave them alone.
type TeamResult struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	TeamID uint `json:"team_id" gorm:"not null;uniqueIndex:idx_team_results_team_race"`
	RaceID uint `json:"race_id" gorm:"not null;uniqueIndex:idx_team_results_team_race;index"`

	AgeCategoryID *uint `json:"age_category_id,omitempty" gorm:"index"`

	AverageTemps      float64 `json:"average_temps" gorm:"not null;default:0"`
	AverageMalus      float64 `json:"average_malus" gorm:"not null;default:0"`
	AverageTempsFinal float64 `json:"average_temps_final" gorm:"not null;default:0"`
	MemberCount       int     `json:"member_count" gorm:"not null;default:0"`

	Points *float64 `json:"points,omitempty"`
	Manual bool     `json:"manual" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Team Team `json:"team,omitempty" gorm:"foreignKey:TeamID"`
}
