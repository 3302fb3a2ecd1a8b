package commands

import (
	"fmt"
	"os"

	"github.com/danmuck/bootctl/internal/config"
)

type InitCmd struct {
	Path  string `arg:"" optional:"" default:"bootctl.toml" help:"Where to write the config file"`
	Force bool   `help:"Overwrite an existing file"`
}

func (i *InitCmd) Run(globals *Globals) error {
	if err := config.WriteTemplate(i.Path, i.Force); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", i.Path)
	return nil
}
