package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/kawhe-app/kawhe/internal/clock"
	"github.com/kawhe-app/kawhe/internal/config"
	obsmetrics "github.com/kawhe-app/kawhe/internal/observability/metrics"
	"github.com/kawhe-app/kawhe/internal/registration/domain"
	"github.com/kawhe-app/kawhe/internal/serial"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Repo     domain.Repository
	Resolver *serial.Resolver
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	repo     domain.Repository
	resolver *serial.Resolver
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("registration.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		repo:     p.Repo,
		resolver: p.Resolver,
		metrics:  p.Metrics,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.RegisterResponse, error) {
	if req.PassTypeIdentifier != s.cfg.PassTypeIdentifier {
		return domain.RegisterResponse{}, domain.ErrPassTypeMismatch
	}
	if strings.TrimSpace(req.PushToken) == "" {
		return domain.RegisterResponse{}, domain.ErrInvalidPushToken
	}

	account, err := s.resolver.Resolve(ctx, req.SerialNumber)
	if err != nil {
		return domain.RegisterResponse{}, err
	}
	if account == nil {
		return domain.RegisterResponse{}, domain.ErrAccountNotFound
	}

	now := s.clock.Now()
	reg := domain.DeviceRegistration{
		ID:                      s.genID.Generate(),
		DeviceLibraryIdentifier: req.DeviceLibraryIdentifier,
		PassTypeIdentifier:      req.PassTypeIdentifier,
		SerialNumber:            req.SerialNumber,
		PushToken:               req.PushToken,
		Active:                  true,
		AccountID:               account.ID,
		LastRegisteredAt:        now,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	// No wrapping transaction: the identity unique index is the guard,
	// and keeping the insert auto-committed lets the duplicate-key
	// fallback re-read a racing winner's row on every driver.
	created, err := s.repo.Upsert(ctx, s.db, &reg)
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	action := "reregister"
	if created {
		action = "register"
	}
	s.metrics.IncRegistration(action)
	s.log.Info("device registered",
		zap.String("device", req.DeviceLibraryIdentifier),
		zap.String("serial", req.SerialNumber),
		zap.Bool("created", created),
	)
	return domain.RegisterResponse{Created: created}, nil
}

func (s *Service) Unregister(ctx context.Context, req domain.UnregisterRequest) error {
	// Idempotent by design: deactivating an absent row is a no-op.
	err := s.repo.Deactivate(ctx, s.db, req.DeviceLibraryIdentifier, req.PassTypeIdentifier, req.SerialNumber, s.clock.Now())
	if err != nil {
		return err
	}
	s.metrics.IncRegistration("unregister")
	return nil
}

func (s *Service) UpdatedSerials(ctx context.Context, req domain.UpdatedSerialsRequest) (domain.UpdatedSerialsResponse, error) {
	var serials []string
	var err error
	if req.UpdatedSince == nil {
		// No cutoff means the device wants its full registration set.
		var regs []domain.DeviceRegistration
		regs, err = s.repo.ListActiveByDevice(ctx, s.db, req.DeviceLibraryIdentifier, req.PassTypeIdentifier)
		for _, reg := range regs {
			serials = append(serials, reg.SerialNumber)
		}
	} else {
		serials, err = s.repo.ListUpdatedAccountSerials(ctx, s.db, req.DeviceLibraryIdentifier, req.PassTypeIdentifier, *req.UpdatedSince)
	}
	if err != nil {
		return domain.UpdatedSerialsResponse{}, err
	}
	return domain.UpdatedSerialsResponse{
		LastUpdated:   s.clock.Now(),
		SerialNumbers: serials,
	}, nil
}

func (s *Service) ActiveDeviceCount(ctx context.Context, accountID snowflake.ID) (int64, error) {
	return s.repo.CountActiveByAccount(ctx, s.db, accountID)
}
