package account

import (
	"github.com/kawhe-app/kawhe/internal/account/repository"
	"github.com/kawhe-app/kawhe/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
