package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	accountrepository "github.com/kawhe-app/kawhe/internal/account/repository"
	"github.com/kawhe-app/kawhe/internal/clock"
	"github.com/kawhe-app/kawhe/internal/config"
	"github.com/kawhe-app/kawhe/internal/registration/domain"
	"github.com/kawhe-app/kawhe/internal/registration/repository"
	"github.com/kawhe-app/kawhe/internal/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testPassType = "pass.nz.kawhe.loyalty"

type regFixture struct {
	svc  domain.Service
	db   *gorm.DB
	node *snowflake.Node
	clk  *clock.FakeClock
}

func setupRegistration(t *testing.T) *regFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Store{},
		&accountdomain.LoyaltyAccount{},
		&domain.DeviceRegistration{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	resolver := serial.NewResolver(serial.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: accountrepository.Provide(),
	})

	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      config.Config{PassTypeIdentifier: testPassType},
		Repo:     repository.Provide(),
		Resolver: resolver,
	})

	return &regFixture{svc: svc, db: db, node: node, clk: clk}
}

func (f *regFixture) seedAccount(t *testing.T) accountdomain.LoyaltyAccount {
	t.Helper()
	account := accountdomain.LoyaltyAccount{
		ID:              f.node.Generate(),
		StoreID:         f.node.Generate(),
		CustomerID:      f.node.Generate(),
		PublicToken:     "pub-" + f.node.Generate().String(),
		WalletAuthToken: "wallet-" + f.node.Generate().String(),
		ManualEntryCode: "m-" + f.node.Generate().String(),
	}
	require.NoError(t, f.db.Create(&account).Error)
	return account
}

func TestRegisterCreatesThenReregisters(t *testing.T) {
	f := setupRegistration(t)
	account := f.seedAccount(t)
	sn := serial.Encode(account.StoreID, account.CustomerID)

	first, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
		PushToken:               "push-token-a",
	})
	require.NoError(t, err)
	assert.True(t, first.Created)

	// Same device re-registering with a rotated push token.
	second, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
		PushToken:               "push-token-b",
	})
	require.NoError(t, err)
	assert.False(t, second.Created)

	var regs []domain.DeviceRegistration
	require.NoError(t, f.db.Find(&regs).Error)
	require.Len(t, regs, 1)
	assert.Equal(t, "push-token-b", regs[0].PushToken)
	assert.True(t, regs[0].Active)
	assert.Equal(t, account.ID, regs[0].AccountID)
}

func TestRegisterSurvivesConcurrentFirstRegistration(t *testing.T) {
	f := setupRegistration(t)
	account := f.seedAccount(t)
	sn := serial.Encode(account.StoreID, account.CustomerID)

	// Slip a competing row in between the existence check and the
	// insert, so the insert hits the identity unique index the way a
	// concurrent first registration would.
	raced := false
	err := f.db.Callback().Create().Before("gorm:create").Register("competing_registration", func(tx *gorm.DB) {
		if raced || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "device_registrations" {
			return
		}
		raced = true
		competitor := domain.DeviceRegistration{
			ID:                      f.node.Generate(),
			DeviceLibraryIdentifier: "device-1",
			PassTypeIdentifier:      testPassType,
			SerialNumber:            sn,
			PushToken:               "push-token-winner",
			Active:                  true,
			AccountID:               account.ID,
			LastRegisteredAt:        f.clk.Now(),
		}
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Create(&competitor).Error)
	})
	require.NoError(t, err)

	resp, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
		PushToken:               "push-token-loser",
	})
	require.NoError(t, err)
	assert.True(t, raced)
	assert.False(t, resp.Created)

	var regs []domain.DeviceRegistration
	require.NoError(t, f.db.Find(&regs).Error)
	require.Len(t, regs, 1)
	assert.True(t, regs[0].Active)
	assert.Equal(t, "push-token-loser", regs[0].PushToken)
}

func TestRegisterUnknownSerial(t *testing.T) {
	f := setupRegistration(t)

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            "kawhe-42-42",
		PushToken:               "push-token",
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRegisterWrongPassType(t *testing.T) {
	f := setupRegistration(t)
	account := f.seedAccount(t)

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      "pass.example.other",
		SerialNumber:            serial.Encode(account.StoreID, account.CustomerID),
		PushToken:               "push-token",
	})
	assert.ErrorIs(t, err, domain.ErrPassTypeMismatch)
}

func TestRegisterEmptyPushToken(t *testing.T) {
	f := setupRegistration(t)
	account := f.seedAccount(t)

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            serial.Encode(account.StoreID, account.CustomerID),
		PushToken:               "   ",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPushToken)
}

func TestUnregisterDeactivatesAndIsIdempotent(t *testing.T) {
	f := setupRegistration(t)
	account := f.seedAccount(t)
	sn := serial.Encode(account.StoreID, account.CustomerID)

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
		PushToken:               "push-token",
	})
	require.NoError(t, err)

	req := domain.UnregisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
	}
	require.NoError(t, f.svc.Unregister(context.Background(), req))

	var reg domain.DeviceRegistration
	require.NoError(t, f.db.First(&reg).Error)
	assert.False(t, reg.Active)

	// Unregistering again, or for a pair that never existed, is a no-op.
	require.NoError(t, f.svc.Unregister(context.Background(), req))
	require.NoError(t, f.svc.Unregister(context.Background(), domain.UnregisterRequest{
		DeviceLibraryIdentifier: "ghost-device",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            "kawhe-1-1",
	}))
}

func TestUnregisterStampsClockTime(t *testing.T) {
	f := setupRegistration(t)
	account := f.seedAccount(t)
	sn := serial.Encode(account.StoreID, account.CustomerID)

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
		PushToken:               "push-token",
	})
	require.NoError(t, err)

	f.clk.Advance(45 * time.Minute)
	require.NoError(t, f.svc.Unregister(context.Background(), domain.UnregisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
	}))

	var reg domain.DeviceRegistration
	require.NoError(t, f.db.First(&reg).Error)
	assert.False(t, reg.Active)
	assert.Equal(t, f.clk.Now(), reg.UpdatedAt.UTC())
}

func TestActiveDeviceCount(t *testing.T) {
	f := setupRegistration(t)
	ctx := context.Background()
	account := f.seedAccount(t)
	other := f.seedAccount(t)
	sn := serial.Encode(account.StoreID, account.CustomerID)

	for _, device := range []string{"device-1", "device-2"} {
		_, err := f.svc.Register(ctx, domain.RegisterRequest{
			DeviceLibraryIdentifier: device,
			PassTypeIdentifier:      testPassType,
			SerialNumber:            sn,
			PushToken:               "push-" + device,
		})
		require.NoError(t, err)
	}

	count, err := f.svc.ActiveDeviceCount(ctx, account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	require.NoError(t, f.svc.Unregister(ctx, domain.UnregisterRequest{
		DeviceLibraryIdentifier: "device-2",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
	}))

	count, err = f.svc.ActiveDeviceCount(ctx, account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = f.svc.ActiveDeviceCount(ctx, other.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdatedSerialsFiltersByTimestamp(t *testing.T) {
	f := setupRegistration(t)
	ctx := context.Background()

	staleAccount := f.seedAccount(t)
	freshAccount := f.seedAccount(t)

	staleSerial := serial.Encode(staleAccount.StoreID, staleAccount.CustomerID)
	freshSerial := serial.Encode(freshAccount.StoreID, freshAccount.CustomerID)

	for _, sn := range []string{staleSerial, freshSerial} {
		_, err := f.svc.Register(ctx, domain.RegisterRequest{
			DeviceLibraryIdentifier: "device-1",
			PassTypeIdentifier:      testPassType,
			SerialNumber:            sn,
			PushToken:               "push-" + sn,
		})
		require.NoError(t, err)
	}

	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Model(&accountdomain.LoyaltyAccount{}).
		Where("id = ?", staleAccount.ID).
		Update("updated_at", cutoff.Add(-time.Hour)).Error)
	require.NoError(t, f.db.Model(&accountdomain.LoyaltyAccount{}).
		Where("id = ?", freshAccount.ID).
		Update("updated_at", cutoff.Add(time.Hour)).Error)

	resp, err := f.svc.UpdatedSerials(ctx, domain.UpdatedSerialsRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		UpdatedSince:            &cutoff,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{freshSerial}, resp.SerialNumbers)
	assert.Equal(t, f.clk.Now(), resp.LastUpdated)

	// Without a cutoff every active registration is returned.
	all, err := f.svc.UpdatedSerials(ctx, domain.UpdatedSerialsRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
	})
	require.NoError(t, err)
	assert.Len(t, all.SerialNumbers, 2)
}

func TestUpdatedSerialsSkipsInactive(t *testing.T) {
	f := setupRegistration(t)
	ctx := context.Background()
	account := f.seedAccount(t)
	sn := serial.Encode(account.StoreID, account.CustomerID)

	_, err := f.svc.Register(ctx, domain.RegisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
		PushToken:               "push-token",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Unregister(ctx, domain.UnregisterRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
		SerialNumber:            sn,
	}))

	resp, err := f.svc.UpdatedSerials(ctx, domain.UpdatedSerialsRequest{
		DeviceLibraryIdentifier: "device-1",
		PassTypeIdentifier:      testPassType,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.SerialNumbers)
}
