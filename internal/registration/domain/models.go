package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DeviceRegistration binds one device's push channel to one pass.
// Rows are created on first registration, reactivated on
// re-registration and deactivated on unregister or on a permanent
// delivery failure. They are never hard-deleted.
type DeviceRegistration struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`

	DeviceLibraryIdentifier string `gorm:"type:text;not null;uniqueIndex:ux_registrations_identity,priority:1" json:"device_library_identifier"`
	PassTypeIdentifier      string `gorm:"type:text;not null;uniqueIndex:ux_registrations_identity,priority:2" json:"pass_type_identifier"`
	SerialNumber            string `gorm:"type:text;not null;uniqueIndex:ux_registrations_identity,priority:3;index" json:"serial_number"`

	PushToken string `gorm:"type:text;not null" json:"push_token"`
	Active    bool   `gorm:"not null;default:true;index" json:"active"`

	// AccountID is a lookup reference, not ownership.
	AccountID snowflake.ID `gorm:"not null;index" json:"account_id"`

	LastRegisteredAt time.Time `gorm:"not null" json:"last_registered_at"`
	CreatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DeviceRegistration) TableName() string { return "device_registrations" }
