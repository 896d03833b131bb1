package migration

import (
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	ledgerdomain "github.com/kawhe-app/kawhe/internal/ledger/domain"
	registrationdomain "github.com/kawhe-app/kawhe/internal/registration/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(AutoMigrate),
)

// AutoMigrate creates or updates the schema for the loyalty core.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&accountdomain.Store{},
		&accountdomain.Staff{},
		&accountdomain.LoyaltyAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.PointsTransaction{},
		&registrationdomain.DeviceRegistration{},
	)
}
