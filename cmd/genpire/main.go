package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/genpire/genpire/internal/clock"
	"github.com/genpire/genpire/internal/migration"
	"github.com/genpire/genpire/internal/observability"
	"github.com/genpire/genpire/internal/scheduler"
	"github.com/genpire/genpire/internal/server"
	"github.com/genpire/genpire/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure. config.Module is pulled in by server.Module.
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema first, then the HTTP surface and the reconciler.
		migration.Module,
		server.Module,
		scheduler.Module,
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
