package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Creation method tags recorded on signup.
const (
	CreatedByOTP        = "otp"
	CreatedByAdminPanel = "admin-panel"
)

// NotifyPreferences captures the channels a user wants notifications on.
type NotifyPreferences struct {
	WhatsApp bool `json:"whatsapp"`
	Email    bool `json:"email"`
}

// User is an identity record. The phone number is the canonical login
// identifier; disabling a user tombstones the row rather than removing it.
type User struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	FullName     string  `gorm:"size:100;not null" json:"fullName"`
	PhoneNumber  string  `gorm:"size:20;uniqueIndex;not null" json:"phoneNumber"`
	EmailAddress *string `gorm:"size:255" json:"emailAddress,omitempty"`
	Password     string  `gorm:"size:128;not null" json:"-"`

	Notify datatypes.JSONType[NotifyPreferences] `gorm:"not null" json:"notify"`

	LastLoginAt     *time.Time `json:"lastLoginDate,omitempty"`
	CreatedByMethod string     `gorm:"size:24;not null" json:"-"`

	LastUsedTeamID *string `gorm:"type:uuid" json:"lastUsedTeamId,omitempty"`

	Memberships   []TeamMember   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"memberships,omitempty"`
	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// OwnerID keys change events for this entity. Users are not owned by any
// tenant, so their events are keyed by the user id itself.
func (u *User) OwnerID() string { return u.ID }
