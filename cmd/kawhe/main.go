package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/kawhe-app/kawhe/internal/clock"
	"github.com/kawhe-app/kawhe/internal/config"
	"github.com/kawhe-app/kawhe/internal/migration"
	"github.com/kawhe-app/kawhe/internal/observability"
	"github.com/kawhe-app/kawhe/internal/server"
	"github.com/kawhe-app/kawhe/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
