package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/talkbase/accounts/internal/scopes"
)

// TeamMember joins a user to a team with a granted scope set (the member's
// "wallet"). Identity is the (team, user) pair; there is no surrogate key.
type TeamMember struct {
	TeamID string `gorm:"primaryKey;type:uuid" json:"teamId"`
	UserID string `gorm:"primaryKey;type:uuid" json:"userId"`

	Team *Team `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"team,omitempty"`
	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`

	AddedAt time.Time `gorm:"autoCreateTime" json:"addedAt"`
	// AddedBy is nil for self-signup memberships.
	AddedBy *string `gorm:"type:uuid" json:"addedBy,omitempty"`

	Scopes datatypes.JSONSlice[scopes.Scope] `gorm:"not null" json:"scopes"`
}

// OwnerID keys change events for this entity by the owning team.
func (m *TeamMember) OwnerID() string { return m.TeamID }
