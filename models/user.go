package models

import (
	"time"
)

// User is the local mirror of the club platform's member directory, plus the
// placeholder users created by the results importer for unmatched CSV names.
// Directory rows are populated by the member sync worker; imported rows are
// created by the participant resolver and never deleted (they keep re-imports
// of the same file from minting duplicates).
type User struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	FirstName string `json:"first_name" gorm:"not null;index"`
	LastName  string `json:"last_name" gorm:"not null;index"`
	Email     string `json:"email" gorm:"uniqueIndex;not null"`
	IsPublic  bool   `json:"is_public" gorm:"default:false"`

	// MemberReference is the club platform's adherent number (adh_id).
	// Always nil for imported users.
	MemberReference  *string `json:"member_reference,omitempty" gorm:"column:member_reference;uniqueIndex"`
	MedicalReference *string `json:"medical_reference,omitempty"`

	BirthDate *time.Time `json:"birth_date,omitempty"`

	// Imported marks a user synthesized by the CSV importer. This flag is the
	// single source of truth for the synthetic/organic distinction — the
	// @imported.local email is display convention only.
	Imported bool `json:"imported" gorm:"default:false;index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// FullName renders the display name the way CSV exports expect it.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
