package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bootctl/internal/registry"
)

var (
	ErrEmptyDependencySet = errors.New("bootstrap: empty dependency set")
	ErrBootstrapFailed    = errors.New("bootstrap: dependency bootstrap could not complete")
)

// IndexPath is the repository-relative location of a pack index document.
const IndexPath = "index.toml"

// FallbackRepositories is the fixed source set registered when local
// satisfaction fails.
var FallbackRepositories = []registry.SourceRepository{
	{Name: "core", URL: "https://packs.bootctl.dev/core"},
	{Name: "community", URL: "https://packs.bootctl.dev/community"},
}

// PackRegistry is the registry capability the orchestrator drives. The
// concrete implementation owns index interpretation and archive layout.
type PackRegistry interface {
	Load(name string) error
	Installed(name string) bool
	Repositories() []registry.SourceRepository
	RegisterRepository(repo registry.SourceRepository) error
	MergeIndex(repo registry.SourceRepository, index []byte) error
	Install(ctx context.Context, name string) error
}

// Scope runs fn inside an isolated environment. registry.Scoped is the
// production implementation; tests substitute a passthrough.
type Scope func(fn func() error) error

// Options configures an Orchestrator.
type Options struct {
	Registry     PackRegistry
	Downloader   registry.Fetcher
	Scope        Scope
	Repositories []registry.SourceRepository
}

// Orchestrator satisfies a dependency set locally first, falling back to
// repository refresh and install inside a scoped environment.
type Orchestrator struct {
	reg      PackRegistry
	dl       registry.Fetcher
	scope    Scope
	fallback []registry.SourceRepository
	inflight *taskSet
}

func New(opts Options) *Orchestrator {
	scope := opts.Scope
	if scope == nil {
		scope = func(fn func() error) error { return fn() }
	}
	fallback := opts.Repositories
	if len(fallback) == 0 {
		fallback = FallbackRepositories
	}
	return &Orchestrator{
		reg:      opts.Registry,
		dl:       opts.Downloader,
		scope:    scope,
		fallback: fallback,
		inflight: newTaskSet(),
	}
}

// Ensure makes every named pack loadable. When all packs already load
// locally it returns immediately with no network access and no environment
// scoping. A second local miss after refresh and install is fatal.
func (o *Orchestrator) Ensure(ctx context.Context, deps []string) error {
	if len(deps) == 0 {
		return ErrEmptyDependencySet
	}

	missing, err := o.loadAll(deps)
	if err == nil {
		log.Debug().Int("packs", len(deps)).Msg("dependency set satisfied locally")
		return nil
	}
	log.Info().Strs("missing", missing).Msg("dependency set incomplete, entering bootstrap")

	return o.scope(func() error {
		for _, repo := range o.fallback {
			if err := o.reg.RegisterRepository(repo); err != nil {
				return fmt.Errorf("%w: register %s: %w", ErrBootstrapFailed, repo.Name, err)
			}
		}

		o.refresh(ctx)

		for _, dep := range deps {
			if o.reg.Installed(dep) {
				continue
			}
			if err := o.reg.Install(ctx, dep); err != nil {
				return fmt.Errorf("%w: install %s: %w", ErrBootstrapFailed, dep, err)
			}
		}

		if missing, err := o.loadAll(deps); err != nil {
			return fmt.Errorf("%w: unresolved %s: %w", ErrBootstrapFailed, strings.Join(missing, ", "), err)
		}
		return nil
	})
}

// refresh fetches every registered repository's index. Failures are logged
// and skipped so one dead mirror never blocks the others; the in-progress
// set keeps overlapping passes from fetching the same source twice.
func (o *Orchestrator) refresh(ctx context.Context) {
	for _, repo := range o.reg.Repositories() {
		if !o.inflight.Begin(repo.Name) {
			log.Debug().Str("repository", repo.Name).Msg("refresh already in flight, skipping")
			continue
		}
		data, err := o.dl.Fetch(ctx, repo, IndexPath)
		o.inflight.End(repo.Name)
		if err != nil {
			log.Warn().Err(err).Str("repository", repo.Name).Msg("repository refresh failed")
			continue
		}
		if err := o.reg.MergeIndex(repo, data); err != nil {
			log.Warn().Err(err).Str("repository", repo.Name).Msg("repository index rejected")
			continue
		}
	}
}

// loadAll attempts a direct load of every dependency, returning the names
// that failed and the last underlying cause.
func (o *Orchestrator) loadAll(deps []string) ([]string, error) {
	var missing []string
	var lastErr error
	for _, dep := range deps {
		if err := o.reg.Load(dep); err != nil {
			missing = append(missing, dep)
			lastErr = err
		}
	}
	return missing, lastErr
}
