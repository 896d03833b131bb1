package domain

import (
	"context"
	"errors"
)

type GetAccountRequest struct {
	ID string
}

type AccountResponse struct {
	Account LoyaltyAccount `json:"account"`
	Store   Store          `json:"store"`
}

type Service interface {
	GetByID(ctx context.Context, req GetAccountRequest) (AccountResponse, error)
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("account_not_found")
)
