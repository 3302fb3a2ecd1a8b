package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/danmuck/bootctl/internal/negotiate"
	"github.com/danmuck/bootctl/internal/tools"
)

type DoctorCmd struct {
	Runner tools.CommandRunner `kong:"-"`
}

// Run probes each candidate transport client and reports availability.
// Exit is non-zero when no candidate is usable, since ensure would have no
// cryptographic engine to drive.
func (d *DoctorCmd) Run(globals *Globals) error {
	runner := d.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}

	ok := color.New(color.FgGreen).SprintFunc()
	missing := color.New(color.FgRed).SprintFunc()

	usable := 0
	for _, client := range negotiate.DefaultClients() {
		binary := client.Template[0]
		if !tools.Available(binary) {
			fmt.Fprintf(os.Stdout, "%s  %s (%s not on PATH)\n", missing("missing"), client.Name, binary)
			continue
		}
		_, _, exitCode, _ := runner.Run(binary, "--version")
		if exitCode == 127 {
			fmt.Fprintf(os.Stdout, "%s  %s (%s not runnable)\n", missing("missing"), client.Name, binary)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s      %s (%s)\n", ok("ok"), client.Name, strings.Join(client.Template, " "))
		usable++
	}

	if usable == 0 {
		return fmt.Errorf("no transport client available: install gnutls-cli or openssl")
	}
	return nil
}
