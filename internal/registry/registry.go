package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

var (
	ErrPackMissing       = errors.New("registry: pack not present locally")
	ErrPackUnknown       = errors.New("registry: pack not in any repository index")
	ErrRepositoryExists  = errors.New("registry: repository name already registered")
	ErrInvalidRepository = errors.New("registry: invalid repository")
	ErrInvalidIndex      = errors.New("registry: invalid repository index")
)

// Fetcher retrieves one path from a source repository over a negotiated
// channel. Implementations live above this package; the registry treats
// fetched bytes as opaque until merged.
type Fetcher interface {
	Fetch(ctx context.Context, repo SourceRepository, path string) ([]byte, error)
}

// DirRegistry is the on-disk pack registry over one Environment. Installed
// packs are archive files under the environment's install root.
type DirRegistry struct {
	env   *Environment
	fetch Fetcher
}

func NewDirRegistry(env *Environment, fetch Fetcher) *DirRegistry {
	return &DirRegistry{env: env, fetch: fetch}
}

// Load attempts to satisfy one pack from local state only. Success records
// the pack in the local index; no network access happens here.
func (r *DirRegistry) Load(name string) error {
	name = strings.TrimSpace(name)
	if _, ok := r.env.LocalIndex[name]; ok {
		return nil
	}
	path := r.packPath(name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrPackMissing, name)
	}
	r.env.LocalIndex[name] = PackRecord{Name: name, Path: path}
	return nil
}

// Installed reports whether a pack is already marked present.
func (r *DirRegistry) Installed(name string) bool {
	_, ok := r.env.LocalIndex[strings.TrimSpace(name)]
	return ok
}

// Repositories returns the registered repositories in registration order.
func (r *DirRegistry) Repositories() []SourceRepository {
	out := make([]SourceRepository, len(r.env.Repositories))
	copy(out, r.env.Repositories)
	return out
}

// RegisterRepository adds a source repository. Re-registering an identical
// (name, URL) pair is a no-op; reusing a name for a different URL fails.
func (r *DirRegistry) RegisterRepository(repo SourceRepository) error {
	repo.Name = strings.TrimSpace(repo.Name)
	repo.URL = strings.TrimSpace(repo.URL)
	if repo.Name == "" || repo.URL == "" {
		return fmt.Errorf("%w: name and url are required", ErrInvalidRepository)
	}
	for _, existing := range r.env.Repositories {
		if existing.Name == repo.Name {
			if existing.URL == repo.URL {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrRepositoryExists, repo.Name)
		}
	}
	r.env.Repositories = append(r.env.Repositories, repo)
	return nil
}

// packIndex is the wire shape of a repository index document.
type packIndex struct {
	Packs []struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		Path    string `toml:"path"`
	} `toml:"packs"`
}

// MergeIndex folds one fetched repository index into the remote index.
// Earlier repositories win on name collisions, matching registration order
// priority.
func (r *DirRegistry) MergeIndex(repo SourceRepository, data []byte) error {
	var idx packIndex
	if err := toml.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidIndex, repo.Name, err)
	}
	merged := 0
	for _, entry := range idx.Packs {
		name := strings.TrimSpace(entry.Name)
		if name == "" || strings.TrimSpace(entry.Path) == "" {
			return fmt.Errorf("%w: %s: entry missing name or path", ErrInvalidIndex, repo.Name)
		}
		if _, ok := r.env.RemoteIndex[name]; ok {
			continue
		}
		r.env.RemoteIndex[name] = RemotePack{
			Name:       name,
			Version:    strings.TrimSpace(entry.Version),
			Path:       strings.TrimSpace(entry.Path),
			Repository: repo,
		}
		merged++
	}
	log.Debug().Str("repository", repo.Name).Int("packs", merged).Msg("index merged")
	return nil
}

// Install fetches a pack's archive from its repository and writes it under
// the install root, marking it installed.
func (r *DirRegistry) Install(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	remote, ok := r.env.RemoteIndex[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPackUnknown, name)
	}

	data, err := r.fetch.Fetch(ctx, remote.Repository, remote.Path)
	if err != nil {
		return fmt.Errorf("registry: install %s from %s: %w", name, remote.Repository.Name, err)
	}

	path := r.packPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("registry: install %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: install %s: %w", name, err)
	}

	r.env.LocalIndex[name] = PackRecord{Name: name, Version: remote.Version, Path: path}
	log.Info().Str("pack", name).Str("repository", remote.Repository.Name).Msg("pack installed")
	return nil
}

func (r *DirRegistry) packPath(name string) string {
	return filepath.Join(r.env.InstallRoot, name+".pack")
}
