package serial

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	accountrepository "github.com/kawhe-app/kawhe/internal/account/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupResolver(t *testing.T) (*Resolver, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&accountdomain.Store{}, &accountdomain.LoyaltyAccount{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	r := NewResolver(Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: accountrepository.Provide(),
	})
	return r, db, node
}

func seedAccount(t *testing.T, db *gorm.DB, node *snowflake.Node) accountdomain.LoyaltyAccount {
	t.Helper()
	account := accountdomain.LoyaltyAccount{
		ID:              node.Generate(),
		StoreID:         node.Generate(),
		CustomerID:      node.Generate(),
		PublicToken:     "pub-" + node.Generate().String(),
		WalletAuthToken: "wallet-" + node.Generate().String(),
		ManualEntryCode: "m-" + node.Generate().String(),
	}
	require.NoError(t, db.Create(&account).Error)
	return account
}

func TestResolveBySerial(t *testing.T) {
	r, db, node := setupResolver(t)
	account := seedAccount(t, db, node)

	got, err := r.Resolve(context.Background(), Encode(account.StoreID, account.CustomerID))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, account.ID, got.ID)
}

func TestResolveStripsBarcodePrefix(t *testing.T) {
	r, db, node := setupResolver(t)
	account := seedAccount(t, db, node)

	got, err := r.Resolve(context.Background(), "LA:"+Encode(account.StoreID, account.CustomerID))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, account.ID, got.ID)
}

func TestResolveFallsBackToPublicToken(t *testing.T) {
	r, db, node := setupResolver(t)
	account := seedAccount(t, db, node)

	got, err := r.Resolve(context.Background(), account.PublicToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, account.ID, got.ID)
}

func TestResolveFallsBackToNumericID(t *testing.T) {
	r, db, node := setupResolver(t)
	account := seedAccount(t, db, node)

	got, err := r.Resolve(context.Background(), account.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, account.ID, got.ID)
}

func TestResolveUnknownReturnsNil(t *testing.T) {
	r, _, _ := setupResolver(t)

	got, err := r.Resolve(context.Background(), "kawhe-99-99")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}
