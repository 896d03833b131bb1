package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/kawhe-app/kawhe/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LoyaltyAccount, error) {
	var account domain.LoyaltyAccount
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindByStoreAndCustomer(ctx context.Context, db *gorm.DB, storeID, customerID snowflake.ID) (*domain.LoyaltyAccount, error) {
	var account domain.LoyaltyAccount
	err := db.WithContext(ctx).
		Where("store_id = ? AND customer_id = ?", storeID, customerID).
		First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindByPublicToken(ctx context.Context, db *gorm.DB, token string) (*domain.LoyaltyAccount, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	var account domain.LoyaltyAccount
	err := db.WithContext(ctx).
		Where("public_token = ?", token).
		First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindStore(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Store, error) {
	var store domain.Store
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&store).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &store, nil
}

func (r *repo) FindStaff(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Staff, error) {
	var staff domain.Staff
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&staff).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &staff, nil
}

func (r *repo) FindStaffByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Staff, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	var staff domain.Staff
	err := db.WithContext(ctx).
		Where("api_token = ?", token).
		First(&staff).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &staff, nil
}
