package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kawhe-app/kawhe/internal/registration/domain"
	pkgdb "github.com/kawhe-app/kawhe/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, reg *domain.DeviceRegistration) (bool, error) {
	var existing domain.DeviceRegistration
	err := r.findByIdentity(ctx, db, reg.DeviceLibraryIdentifier, reg.PassTypeIdentifier, reg.SerialNumber, &existing)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		createErr := db.WithContext(ctx).Create(reg).Error
		if createErr == nil {
			return true, nil
		}
		if !pkgdb.IsDuplicateKeyErr(createErr) {
			return false, createErr
		}
		// A concurrent first registration won the insert race.
		// Re-read the winner's row and take the update path so both
		// callers observe an idempotent transition.
		if err := r.findByIdentity(ctx, db, reg.DeviceLibraryIdentifier, reg.PassTypeIdentifier, reg.SerialNumber, &existing); err != nil {
			return false, err
		}
	} else if err != nil {
		return false, err
	}

	err = db.WithContext(ctx).
		Model(&domain.DeviceRegistration{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"push_token":         reg.PushToken,
			"active":             true,
			"account_id":         reg.AccountID,
			"last_registered_at": reg.LastRegisteredAt,
			"updated_at":         reg.LastRegisteredAt,
		}).Error
	if err != nil {
		return false, err
	}
	reg.ID = existing.ID
	return false, nil
}

func (r *repo) findByIdentity(ctx context.Context, db *gorm.DB, deviceID, passType, serial string, dest *domain.DeviceRegistration) error {
	return db.WithContext(ctx).
		Where("device_library_identifier = ? AND pass_type_identifier = ? AND serial_number = ?",
			deviceID, passType, serial).
		First(dest).Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, deviceID, passType, serial string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.DeviceRegistration{}).
		Where("device_library_identifier = ? AND pass_type_identifier = ? AND serial_number = ?",
			deviceID, passType, serial).
		Updates(map[string]any{
			"active":     false,
			"updated_at": now,
		}).Error
}

func (r *repo) DeactivateByPushToken(ctx context.Context, db *gorm.DB, passType, serial, pushToken string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.DeviceRegistration{}).
		Where("pass_type_identifier = ? AND serial_number = ? AND push_token = ?",
			passType, serial, pushToken).
		Updates(map[string]any{
			"active":     false,
			"updated_at": now,
		}).Error
}

func (r *repo) FindActiveBySerial(ctx context.Context, db *gorm.DB, passType, serial string) ([]domain.DeviceRegistration, error) {
	var regs []domain.DeviceRegistration
	err := db.WithContext(ctx).
		Where("pass_type_identifier = ? AND serial_number = ? AND active = ?", passType, serial, true).
		Order("last_registered_at asc").
		Find(&regs).Error
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *repo) ListActiveByDevice(ctx context.Context, db *gorm.DB, deviceID, passType string) ([]domain.DeviceRegistration, error) {
	var regs []domain.DeviceRegistration
	err := db.WithContext(ctx).
		Where("device_library_identifier = ? AND pass_type_identifier = ? AND active = ?", deviceID, passType, true).
		Order("serial_number asc").
		Find(&regs).Error
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *repo) ListUpdatedAccountSerials(ctx context.Context, db *gorm.DB, deviceID, passType string, updatedSince time.Time) ([]string, error) {
	stmt := db.WithContext(ctx).
		Table("device_registrations").
		Select("device_registrations.serial_number").
		Joins("JOIN loyalty_accounts ON loyalty_accounts.id = device_registrations.account_id").
		Where("device_registrations.device_library_identifier = ?", deviceID).
		Where("device_registrations.pass_type_identifier = ?", passType).
		Where("device_registrations.active = ?", true).
		Where("loyalty_accounts.updated_at > ?", updatedSince)

	var serials []string
	if err := stmt.Order("device_registrations.serial_number asc").Scan(&serials).Error; err != nil {
		return nil, err
	}
	return serials, nil
}

func (r *repo) CountActiveByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.DeviceRegistration{}).
		Where("account_id = ? AND active = ?", accountID, true).
		Count(&count).Error
	return count, err
}
