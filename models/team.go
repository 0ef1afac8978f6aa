package models

import (
	"time"
)

// Team groups participants for a raid. Solo teams created by the importer to
// host an unmatched CSV row carry Imported=true and are garbage-collected
// once their last imported membership goes away.
type Team struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Name     string `json:"name" gorm:"not null;index"`
	Imported bool   `json:"imported" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Members []TeamMember `json:"members,omitempty" gorm:"foreignKey:TeamID"`
}

// TeamMember links a user to a team. Imported memberships exist purely to
// host a CSV result row and are the only ones the cleanup path may delete;
// memberships created through the normal team-building flow keep a
// RegistrationID back-reference and are never touched by the importer.
type TeamMember struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	TeamID uint `json:"team_id" gorm:"not null;index"`
	UserID uint `json:"user_id" gorm:"not null;index"`

	RegistrationID *uint `json:"registration_id,omitempty"`
	Imported       bool  `json:"imported" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
