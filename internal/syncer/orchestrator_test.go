package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	"github.com/kawhe-app/kawhe/internal/clock"
	"github.com/kawhe-app/kawhe/internal/config"
	"github.com/kawhe-app/kawhe/internal/push"
	registrationdomain "github.com/kawhe-app/kawhe/internal/registration/domain"
	registrationrepository "github.com/kawhe-app/kawhe/internal/registration/repository"
	"github.com/kawhe-app/kawhe/internal/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testPassType = "pass.nz.kawhe.loyalty"

type pusherStub struct {
	err      error
	attempts []string
}

func (p *pusherStub) Push(ctx context.Context, deviceToken string) error {
	p.attempts = append(p.attempts, deviceToken)
	return p.err
}

func setupSyncer(t *testing.T, stub push.Pusher) (*Orchestrator, *Queue, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&registrationdomain.DeviceRegistration{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	dispatcher := push.NewDispatcher(push.DispatcherParams{
		DB:     db,
		Log:    zap.NewNop(),
		Repo:   registrationrepository.Provide(),
		Pusher: stub,
		Clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	})

	orchestrator := NewOrchestrator(OrchestratorParams{
		Log:        zap.NewNop(),
		Cfg:        config.Config{PassTypeIdentifier: testPassType},
		Dispatcher: dispatcher,
	})
	queue := NewQueue(zap.NewNop(), orchestrator)
	return orchestrator, queue, db, node
}

func seedRegistration(t *testing.T, db *gorm.DB, node *snowflake.Node, account accountdomain.LoyaltyAccount, pushToken string) {
	t.Helper()
	reg := registrationdomain.DeviceRegistration{
		ID:                      node.Generate(),
		DeviceLibraryIdentifier: "device-" + pushToken,
		PassTypeIdentifier:      testPassType,
		SerialNumber:            serial.Encode(account.StoreID, account.CustomerID),
		PushToken:               pushToken,
		Active:                  true,
		AccountID:               account.ID,
		LastRegisteredAt:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&reg).Error)
}

func testAccount(node *snowflake.Node) accountdomain.LoyaltyAccount {
	return accountdomain.LoyaltyAccount{
		ID:         node.Generate(),
		StoreID:    node.Generate(),
		CustomerID: node.Generate(),
	}
}

func TestSyncLoyaltyAccountPushesRegisteredDevices(t *testing.T) {
	stub := &pusherStub{}
	orchestrator, _, db, node := setupSyncer(t, stub)

	account := testAccount(node)
	seedRegistration(t, db, node, account, "tok-a")
	seedRegistration(t, db, node, account, "tok-b")

	orchestrator.SyncLoyaltyAccount(context.Background(), account)
	assert.Len(t, stub.attempts, 2)
}

func TestSyncLoyaltyAccountSwallowsDispatchErrors(t *testing.T) {
	stub := &pusherStub{err: push.ErrSigningKeyUnavailable}
	orchestrator, _, db, node := setupSyncer(t, stub)

	account := testAccount(node)
	seedRegistration(t, db, node, account, "tok-a")

	// No panic, no propagation: a failed dispatch is purely a log line.
	orchestrator.SyncLoyaltyAccount(context.Background(), account)
	assert.Len(t, stub.attempts, 1)
}

func TestQueueDrainProcessesEnqueued(t *testing.T) {
	stub := &pusherStub{}
	_, queue, db, node := setupSyncer(t, stub)

	account := testAccount(node)
	seedRegistration(t, db, node, account, "tok-a")

	queue.EnqueueSync(account)
	queue.EnqueueSync(account)
	queue.Drain(context.Background())

	assert.Len(t, stub.attempts, 2)
}

func TestQueueDropsWhenSaturated(t *testing.T) {
	stub := &pusherStub{}
	_, queue, _, node := setupSyncer(t, stub)

	account := testAccount(node)
	// Fill past capacity; the overflow must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultQueueDepth+10; i++ {
			queue.EnqueueSync(account)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("EnqueueSync blocked on a saturated queue")
	}
}
