package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LoyaltyAccount, error)
	FindByStoreAndCustomer(ctx context.Context, db *gorm.DB, storeID, customerID snowflake.ID) (*LoyaltyAccount, error)
	FindByPublicToken(ctx context.Context, db *gorm.DB, token string) (*LoyaltyAccount, error)
	FindStore(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Store, error)
	FindStaff(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Staff, error)
	FindStaffByToken(ctx context.Context, db *gorm.DB, token string) (*Staff, error)
}
