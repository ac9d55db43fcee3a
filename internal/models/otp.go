package models

import "time"

// OTP is an ephemeral phone-verification record. At most one live OTP
// exists per phone number; the code itself never leaves the server.
type OTP struct {
	PhoneNumber string    `gorm:"primaryKey;size:20" json:"phoneNumber"`
	Code        int       `gorm:"not null" json:"-"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expiresAt"`
	ResendsLeft int       `gorm:"not null" json:"resendsLeft"`
}
