package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RegisterRequest struct {
	DeviceLibraryIdentifier string
	PassTypeIdentifier      string
	SerialNumber            string
	PushToken               string
}

type RegisterResponse struct {
	Created bool
}

type UnregisterRequest struct {
	DeviceLibraryIdentifier string
	PassTypeIdentifier      string
	SerialNumber            string
}

type UpdatedSerialsRequest struct {
	DeviceLibraryIdentifier string
	PassTypeIdentifier      string
	UpdatedSince            *time.Time
}

type UpdatedSerialsResponse struct {
	LastUpdated   time.Time `json:"lastUpdated"`
	SerialNumbers []string  `json:"serialNumbers"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error)
	Unregister(ctx context.Context, req UnregisterRequest) error
	UpdatedSerials(ctx context.Context, req UpdatedSerialsRequest) (UpdatedSerialsResponse, error)
	// ActiveDeviceCount reports how many devices currently hold the
	// account's pass.
	ActiveDeviceCount(ctx context.Context, accountID snowflake.ID) (int64, error)
}

var (
	ErrAccountNotFound  = errors.New("account_not_found")
	ErrPassTypeMismatch = errors.New("pass_type_mismatch")
	ErrInvalidPushToken = errors.New("invalid_push_token")
)
