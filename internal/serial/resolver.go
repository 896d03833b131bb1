package serial

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resolver maps an externally supplied serial string to a loyalty
// account. Resolution walks an ordered strategy list: the current
// serial format first, then the public token, then a raw numeric
// account id. The two fallbacks are a compatibility shim for pass
// files issued before the serial format existed.
type Resolver struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       accountdomain.Repository
	strategies []strategy
}

type strategy func(ctx context.Context, serial string) (*accountdomain.LoyaltyAccount, error)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo accountdomain.Repository
}

func NewResolver(p Params) *Resolver {
	r := &Resolver{
		db:   p.DB,
		log:  p.Log.Named("serial.resolver"),
		repo: p.Repo,
	}
	r.strategies = []strategy{
		r.bySerial,
		r.byPublicToken,
		r.byNumericID,
	}
	return r
}

// Resolve returns the account for a serial, or nil when no strategy
// matches. Barcode prefixes are stripped before resolution.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*accountdomain.LoyaltyAccount, error) {
	serial, _ := StripScanPrefix(raw)
	if serial == "" {
		return nil, nil
	}
	for _, resolve := range r.strategies {
		account, err := resolve(ctx, serial)
		if err != nil {
			return nil, err
		}
		if account != nil {
			return account, nil
		}
	}
	return nil, nil
}

func (r *Resolver) bySerial(ctx context.Context, serial string) (*accountdomain.LoyaltyAccount, error) {
	storeID, customerID, ok := Decode(serial)
	if !ok {
		return nil, nil
	}
	return r.repo.FindByStoreAndCustomer(ctx, r.db, storeID, customerID)
}

func (r *Resolver) byPublicToken(ctx context.Context, serial string) (*accountdomain.LoyaltyAccount, error) {
	return r.repo.FindByPublicToken(ctx, r.db, serial)
}

func (r *Resolver) byNumericID(ctx context.Context, serial string) (*accountdomain.LoyaltyAccount, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(serial))
	if err != nil || id == 0 {
		return nil, nil
	}
	return r.repo.FindByID(ctx, r.db, id)
}

var Module = fx.Module("serial.resolver",
	fx.Provide(NewResolver),
)
