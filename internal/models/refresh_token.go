package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefreshToken is a long-lived session credential. Its expiry slides
// forward on each successful use; the token id itself never rotates.
type RefreshToken struct {
	Token string `gorm:"primaryKey;type:uuid" json:"token"`

	UserID string `gorm:"type:uuid;not null;index" json:"userId"`
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expiresAt"`
}

// BeforeCreate ensures a UUID token is generated.
func (r *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if r.Token == "" {
		r.Token = uuid.NewString()
	}
	return nil
}
