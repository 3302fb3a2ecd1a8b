package negotiate

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrInvalidClient = errors.New("negotiate: invalid transport client")
)

// Client describes one candidate transport tool. Template holds the argv
// with %t (trust file), %h (host), and %p (port) placeholders.
type Client struct {
	Name     string
	Template []string
}

// Validate enforces the fields required to spawn a client.
func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidClient)
	}
	if len(c.Template) == 0 {
		return fmt.Errorf("%w: %s has empty template", ErrInvalidClient, c.Name)
	}
	if strings.TrimSpace(c.Template[0]) == "" {
		return fmt.Errorf("%w: %s has empty command", ErrInvalidClient, c.Name)
	}
	return nil
}

// Argv expands the template for one connection attempt.
func (c Client) Argv(trustFile, host, port string) []string {
	argv := make([]string, 0, len(c.Template))
	for _, arg := range c.Template {
		arg = strings.ReplaceAll(arg, "%t", trustFile)
		arg = strings.ReplaceAll(arg, "%h", host)
		arg = strings.ReplaceAll(arg, "%p", port)
		argv = append(argv, arg)
	}
	return argv
}

var (
	mu       sync.RWMutex
	registry []Client
)

func init() {
	for _, c := range DefaultClients() {
		registry = append(registry, c)
	}
}

// Register appends a client candidate; a candidate with a known name
// replaces the earlier entry in place, keeping its priority slot.
func Register(c Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	for i := range registry {
		if registry[i].Name == c.Name {
			registry[i] = c
			return nil
		}
	}
	registry = append(registry, c)
	return nil
}

// Registered returns the candidates in priority order.
func Registered() []Client {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Client, len(registry))
	copy(out, registry)
	return out
}

// Get resolves a candidate by name.
func Get(name string) (Client, bool) {
	mu.RLock()
	defer mu.RUnlock()
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Client{}, false
}

// DefaultClients returns the built-in candidate set in priority order.
func DefaultClients() []Client {
	return []Client{
		{
			Name:     "gnutls-cli",
			Template: []string{"gnutls-cli", "--x509cafile", "%t", "-p", "%p", "%h"},
		},
		{
			Name:     "gnutls-cli-compat",
			Template: []string{"gnutls-cli", "--x509cafile", "%t", "--priority", "NORMAL:%COMPAT", "-p", "%p", "%h"},
		},
		{
			Name:     "openssl",
			Template: []string{"openssl", "s_client", "-connect", "%h:%p", "-CAfile", "%t", "-ign_eof"},
		},
	}
}
