package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/bootctl/internal/bootstrap"
	"github.com/danmuck/bootctl/internal/config"
	"github.com/danmuck/bootctl/internal/negotiate"
	"github.com/danmuck/bootctl/internal/registry"
)

type EnsureCmd struct {
	Config      string   `help:"Path to bootstrap config" type:"path" default:"bootctl.toml"`
	HostVersion string   `help:"Host runtime version, overrides the config value"`
	Packs       []string `arg:"" optional:"" help:"Pack names, overrides the config list"`
}

func (e *EnsureCmd) Run(ctx context.Context, globals *Globals) error {
	cfg := config.DefaultBootConfig()
	if _, statErr := os.Stat(e.Config); statErr == nil {
		loaded, err := config.LoadBootConfig(e.Config)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if e.HostVersion != "" {
		cfg.HostVersion = e.HostVersion
	}
	packs := cfg.Packs
	if len(e.Packs) > 0 {
		packs = e.Packs
	}
	if len(packs) == 0 {
		return fmt.Errorf("no packs configured: set packs in %s or pass them as arguments", e.Config)
	}
	if strings.TrimSpace(cfg.HostVersion) == "" {
		return fmt.Errorf("host version required: set host_version in %s or pass --host-version", e.Config)
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	return orch.Ensure(ctx, packs)
}

// buildOrchestrator wires the negotiator, downloader, registry, and scoped
// environment from one config.
func buildOrchestrator(cfg config.BootConfig) (*bootstrap.Orchestrator, error) {
	policy, err := negotiate.ParsePolicy(cfg.Trust.Policy)
	if err != nil {
		return nil, err
	}
	handshakeTimeout, err := cfg.HandshakeTimeout()
	if err != nil {
		return nil, err
	}
	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return nil, err
	}
	for i, raw := range cfg.Transport.Clients {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		client := negotiate.Client{
			Name:     fmt.Sprintf("config-%d", i),
			Template: fields,
		}
		if err := negotiate.Register(client); err != nil {
			return nil, err
		}
	}

	var confirm negotiate.Confirmer = negotiate.Decline{}
	if policy == negotiate.PolicyAsk {
		confirm = terminalConfirmer{}
	}

	neg := negotiate.New(negotiate.Options{
		TrustFile:        cfg.Trust.File,
		Policy:           policy,
		Confirm:          confirm,
		HandshakeTimeout: handshakeTimeout,
		PollInterval:     pollInterval,
	})
	dl := bootstrap.NewTransportDownloader(neg)

	env := registry.NewEnvironment("")
	reg := registry.NewDirRegistry(env, dl)

	var fallback []registry.SourceRepository
	for _, repo := range cfg.Repositories {
		fallback = append(fallback, registry.SourceRepository{Name: repo.Name, URL: repo.URL})
	}

	return bootstrap.New(bootstrap.Options{
		Registry:     reg,
		Downloader:   dl,
		Repositories: fallback,
		Scope: func(fn func() error) error {
			return registry.Scoped(env, cfg.DataDir, cfg.HostVersion, fn)
		},
	}), nil
}
