package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	accountrepository "github.com/kawhe-app/kawhe/internal/account/repository"
	accountservice "github.com/kawhe-app/kawhe/internal/account/service"
	"github.com/kawhe-app/kawhe/internal/clock"
	"github.com/kawhe-app/kawhe/internal/config"
	ledgerdomain "github.com/kawhe-app/kawhe/internal/ledger/domain"
	ledgerservice "github.com/kawhe-app/kawhe/internal/ledger/service"
	"github.com/kawhe-app/kawhe/internal/observability"
	"github.com/kawhe-app/kawhe/internal/passkit"
	registrationdomain "github.com/kawhe-app/kawhe/internal/registration/domain"
	registrationrepository "github.com/kawhe-app/kawhe/internal/registration/repository"
	registrationservice "github.com/kawhe-app/kawhe/internal/registration/service"
	"github.com/kawhe-app/kawhe/internal/serial"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testPassType = "pass.nz.kawhe.loyalty"

type harness struct {
	server *Server
	db     *gorm.DB
	node   *snowflake.Node
	clk    *clock.FakeClock
	cfg    config.Config
}

func setupServer(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Store{},
		&accountdomain.Staff{},
		&accountdomain.LoyaltyAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.PointsTransaction{},
		&registrationdomain.DeviceRegistration{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{
		PassTypeIdentifier: testPassType,
		TeamIdentifier:     "TEAM123456",
		OrganizationName:   "Kawhe",
		RewardTarget:       10,
		StampCooldown:      30 * time.Second,
	}

	log := zap.NewNop()
	accountRepo := accountrepository.Provide()
	resolver := serial.NewResolver(serial.Params{DB: db, Log: log, Repo: accountRepo})

	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Cfg:         cfg,
		AccountRepo: accountRepo,
	})

	registrationSvc := registrationservice.New(registrationservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		Repo:     registrationrepository.Provide(),
		Resolver: resolver,
	})

	engine := NewEngine(observability.Config{})
	srv := NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		DB:              db,
		Log:             log,
		AccountSvc:      accountservice.New(accountservice.Params{DB: db, Log: log, Repo: accountRepo}),
		AccountRepo:     accountRepo,
		LedgerSvc:       ledgerSvc,
		RegistrationSvc: registrationSvc,
		Resolver:        resolver,
		PassGen:         passkit.NewBundleGenerator(cfg),
	})

	return &harness{server: srv, db: db, node: node, clk: clk, cfg: cfg}
}

func (h *harness) seedStore(t *testing.T, rewardTarget int) accountdomain.Store {
	t.Helper()
	store := accountdomain.Store{
		ID:           h.node.Generate(),
		Name:         "Flat White HQ",
		RewardTarget: rewardTarget,
	}
	require.NoError(t, h.db.Create(&store).Error)
	return store
}

func (h *harness) seedStaff(t *testing.T, storeID snowflake.ID, role accountdomain.StaffRole) accountdomain.Staff {
	t.Helper()
	staff := accountdomain.Staff{
		ID:       h.node.Generate(),
		StoreID:  storeID,
		Name:     "Barista",
		Role:     role,
		APIToken: "staff-" + h.node.Generate().String(),
	}
	require.NoError(t, h.db.Create(&staff).Error)
	return staff
}

func (h *harness) seedAccount(t *testing.T, storeID snowflake.ID) accountdomain.LoyaltyAccount {
	t.Helper()
	account := accountdomain.LoyaltyAccount{
		ID:              h.node.Generate(),
		StoreID:         storeID,
		CustomerID:      h.node.Generate(),
		PublicToken:     "pub-" + h.node.Generate().String(),
		WalletAuthToken: "wallet-" + h.node.Generate().String(),
		ManualEntryCode: "m-" + h.node.Generate().String(),
	}
	require.NoError(t, h.db.Create(&account).Error)
	return account
}

type requestOpts struct {
	headers map[string]string
}

func (h *harness) do(t *testing.T, method, path, body string, opts requestOpts) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)
	return rec
}

func applePassHeader(token string) map[string]string {
	return map[string]string{"Authorization": "ApplePass " + token}
}
