package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/kawhe-app/kawhe/internal/account/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("account.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetByID(ctx context.Context, req domain.GetAccountRequest) (domain.AccountResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.AccountResponse{}, domain.ErrInvalidID
	}

	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.AccountResponse{}, err
	}
	if account == nil {
		return domain.AccountResponse{}, domain.ErrNotFound
	}

	store, err := s.repo.FindStore(ctx, s.db, account.StoreID)
	if err != nil {
		return domain.AccountResponse{}, err
	}
	if store == nil {
		return domain.AccountResponse{}, domain.ErrNotFound
	}

	return domain.AccountResponse{Account: *account, Store: *store}, nil
}
