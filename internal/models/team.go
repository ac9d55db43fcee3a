package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Team is the tenant boundary. A single team carries the admin flag; its
// members bypass every scope restriction.
type Team struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CreatedBy string `gorm:"type:uuid;not null;index" json:"createdBy"`
	Creator   *User  `gorm:"foreignKey:CreatedBy;constraint:OnDelete:CASCADE" json:"-"`

	IsAdmin  bool               `gorm:"not null;default:false" json:"isAdmin"`
	Metadata datatypes.JSONMap  `gorm:"not null" json:"metadata"`
	Name     string             `gorm:"size:64;not null" json:"name"`

	Members     []TeamMember `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	InviteLinks []InviteLink `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"inviteLinks,omitempty"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// OwnerID keys change events for this entity.
func (t *Team) OwnerID() string { return t.ID }
