package registration

import (
	"github.com/kawhe-app/kawhe/internal/registration/repository"
	"github.com/kawhe-app/kawhe/internal/registration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("registration.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
