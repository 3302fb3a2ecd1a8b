package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

type Globals struct {
	Version string
}

// terminalConfirmer resolves ask-policy verification prompts on stdin.
// Anything other than an explicit yes declines.
type terminalConfirmer struct{}

func (terminalConfirmer) Confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
