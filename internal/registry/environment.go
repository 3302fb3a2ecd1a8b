package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

var (
	ErrInvalidHostVersion = errors.New("registry: invalid host version")
	ErrNoDataDir          = errors.New("registry: data dir required")
)

// SourceRepository identifies one remote pack index by (name, base URL).
// Unique by name within an environment.
type SourceRepository struct {
	Name string
	URL  string
}

// PackRecord is one locally installed pack.
type PackRecord struct {
	Name    string
	Version string
	Path    string
}

// RemotePack is one pack description merged from a repository index.
type RemotePack struct {
	Name       string
	Version    string
	Path       string
	Repository SourceRepository
}

// Environment holds the four global registry values a bootstrap run may
// touch: known repositories, the local index, the remote index, and the
// install root.
type Environment struct {
	Repositories []SourceRepository
	LocalIndex   map[string]PackRecord
	RemoteIndex  map[string]RemotePack
	InstallRoot  string
}

// NewEnvironment returns an environment rooted at installRoot with empty
// indexes.
func NewEnvironment(installRoot string) *Environment {
	return &Environment{
		LocalIndex:  make(map[string]PackRecord),
		RemoteIndex: make(map[string]RemotePack),
		InstallRoot: installRoot,
	}
}

// snapshot captures the exact values so restoration is bit-for-bit: the
// original slice and map references are handed back untouched.
type snapshot struct {
	repositories []SourceRepository
	localIndex   map[string]PackRecord
	remoteIndex  map[string]RemotePack
	installRoot  string
}

func capture(env *Environment) snapshot {
	return snapshot{
		repositories: env.Repositories,
		localIndex:   env.LocalIndex,
		remoteIndex:  env.RemoteIndex,
		installRoot:  env.InstallRoot,
	}
}

func (s snapshot) restore(env *Environment) {
	env.Repositories = s.repositories
	env.LocalIndex = s.localIndex
	env.RemoteIndex = s.remoteIndex
	env.InstallRoot = s.installRoot
}

// Scoped substitutes env with a private, host-version-keyed equivalent for
// the duration of fn and restores the original values on every exit path,
// including error returns and panics. Install trees for different host
// versions never collide because the private root embeds the version tag.
func Scoped(env *Environment, dataDir string, hostVersion string, fn func() error) error {
	if strings.TrimSpace(dataDir) == "" {
		return ErrNoDataDir
	}
	tag, err := VersionTag(hostVersion)
	if err != nil {
		return err
	}

	root := filepath.Join(dataDir, "packs-"+tag)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("registry: create private install root: %w", err)
	}

	saved := capture(env)
	defer saved.restore(env)

	env.Repositories = nil
	env.LocalIndex = make(map[string]PackRecord)
	env.RemoteIndex = make(map[string]RemotePack)
	env.InstallRoot = root

	return fn()
}

// VersionTag validates a host version string and returns it trimmed for use
// as a directory tag. The configured form is kept as-is, so "29.1" and
// "29.1.0" map to distinct install roots.
func VersionTag(hostVersion string) (string, error) {
	raw := strings.TrimSpace(hostVersion)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidHostVersion)
	}
	v, err := goversion.NewVersion(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidHostVersion, hostVersion, err)
	}
	return v.Original(), nil
}
