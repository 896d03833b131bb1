package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert creates or reactivates the registration identified by
	// (device, passType, serial) and reports whether a new row was
	// created.
	Upsert(ctx context.Context, db *gorm.DB, reg *DeviceRegistration) (created bool, err error)
	Deactivate(ctx context.Context, db *gorm.DB, deviceID, passType, serial string, now time.Time) error
	DeactivateByPushToken(ctx context.Context, db *gorm.DB, passType, serial, pushToken string, now time.Time) error
	FindActiveBySerial(ctx context.Context, db *gorm.DB, passType, serial string) ([]DeviceRegistration, error)
	ListActiveByDevice(ctx context.Context, db *gorm.DB, deviceID, passType string) ([]DeviceRegistration, error)
	ListUpdatedAccountSerials(ctx context.Context, db *gorm.DB, deviceID, passType string, updatedSince time.Time) ([]string, error)
	CountActiveByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
}
