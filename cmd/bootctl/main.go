package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/danmuck/bootctl/cmd/bootctl/internal/commands"
	"github.com/danmuck/bootctl/internal/logging"
)

var (
	version = "dev"
	cli     struct {
		Ensure  commands.EnsureCmd `cmd:"" help:"Ensure the host pack dependency set is present"`
		Doctor  commands.DoctorCmd `cmd:"" help:"Report which transport clients are installed"`
		Init    commands.InitCmd   `cmd:"" help:"Write a starter config file"`
		Version kong.VersionFlag
	}
)

func main() {
	logging.ConfigureRuntime()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Version: version})
	cmd.FatalIfErrorf(err)
}
