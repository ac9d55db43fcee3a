package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/scopes"
)

// InviteLink is a time-bounded credential that converts into one team
// membership per distinct redeeming user. Its scope set is captured at
// creation time and immutable thereafter.
type InviteLink struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expiresAt"`

	TeamID string `gorm:"type:uuid;not null;index" json:"teamId"`
	Team   *Team  `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"team,omitempty"`

	CreatedBy string `gorm:"type:uuid;not null" json:"createdBy"`
	Creator   *User  `gorm:"foreignKey:CreatedBy;constraint:OnDelete:CASCADE" json:"-"`

	Scopes datatypes.JSONSlice[scopes.Scope] `gorm:"not null" json:"scopes"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (l *InviteLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// OwnerID keys change events for this entity by the owning team.
func (l *InviteLink) OwnerID() string { return l.TeamID }
