package main

import (
	"context"

	"github.com/felixgeelhaar/schedcache/adapter/cli"
	"github.com/felixgeelhaar/schedcache/adapter/cli/lookup"
	"github.com/felixgeelhaar/schedcache/adapter/cli/schedule"
)

func main() {
	// Register commands
	cli.AddCommand(schedule.Commands()...)
	cli.AddCommand(lookup.Cmd)

	// Execute CLI
	cli.Execute(context.Background())
}
